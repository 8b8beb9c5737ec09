package prompt

import "errors"

var (
	ErrMissingImage       = errors.New("reference image is required")
	ErrMissingDesign      = errors.New("design image is required")
	ErrMissingInteraction = errors.New("product interaction is required for this campaign")
	ErrMissingName        = errors.New("name is required")
	ErrMissingObject      = errors.New("mockup object is required")
	ErrTooManyFaces       = errors.New("too many face references for one person")
	ErrPeopleCount        = errors.New("number of people is out of range for the subject type")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrEmptyPrompt        = errors.New("prompt is empty")
)

// MaxFacesPerPerson bounds identity references per person and per character.
const MaxFacesPerPerson = 5
