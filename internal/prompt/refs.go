package prompt

import "gelap-studio/internal/codec"

// Refs is the ordered list of reference images submitted with a prompt.
// Add hands out the 1-based position each image will have in the request,
// so prompt clauses can name it.
type Refs struct {
	images []codec.Image
}

func (r *Refs) Add(img codec.Image) int {
	r.images = append(r.images, img)
	return len(r.images)
}

// AddAll appends imgs in order and returns the first and last index.
// Both are zero when imgs is empty.
func (r *Refs) AddAll(imgs []codec.Image) (first, last int) {
	for _, img := range imgs {
		idx := r.Add(img)
		if first == 0 {
			first = idx
		}
		last = idx
	}
	return first, last
}

func (r *Refs) Len() int {
	return len(r.images)
}

// Images returns a copy of the list in submission order.
func (r *Refs) Images() []codec.Image {
	return append([]codec.Image(nil), r.images...)
}

// Built is a prompt ready for submission.
type Built struct {
	Text        string
	Images      []codec.Image
	AspectRatio string
}

// WithAnchor appends anchor to the reference list and the matching
// consistency clause to the text.
func (b Built) WithAnchor(anchor codec.Image) Built {
	refs := Refs{images: append([]codec.Image(nil), b.Images...)}
	idx := refs.Add(anchor)
	b.Images = refs.Images()
	b.Text += AnchorClause(idx)
	return b
}

// WithClause appends a suffix clause to the text.
func (b Built) WithClause(clause string) Built {
	b.Text += clause
	return b
}
