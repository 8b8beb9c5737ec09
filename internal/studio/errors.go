package studio

import (
	"context"
	"errors"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
	"gelap-studio/internal/usage"
)

var (
	ErrNoResult     = errors.New("no generated image to use")
	ErrNoCleanBase  = errors.New("clean or skip the mockup surface first")
	ErrBusy         = errors.New("a generation is already running")
	ErrNoAnalyzer   = errors.New("prompt analysis is not configured")
	ErrUnknownModel = errors.New("unknown model")
)

// Describe turns any controller error into the short message shown to the
// user.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, usage.ErrDailyLimit):
		return "Daily usage limit reached. Try again tomorrow."
	case errors.Is(err, ErrBusy):
		return "A generation is already running. Wait for it to finish or stop it."
	case errors.Is(err, ErrNoCleanBase):
		return "Clean the mockup surface (or skip cleaning) before injecting a design."
	case errors.Is(err, ErrNoResult):
		return "There is no generated image yet."
	case errors.Is(err, ErrNoAnalyzer):
		return "Prompt analysis is not available."
	case errors.Is(err, ErrUnknownModel):
		return "That model no longer exists."
	case errors.Is(err, gemini.ErrMissingCredential):
		return "API key required."
	case errors.Is(err, prompt.ErrMissingInteraction):
		return "Please select or describe a model interaction."
	case errors.Is(err, prompt.ErrMissingName):
		return "A name is required."
	case errors.Is(err, prompt.ErrMissingDesign):
		return "Upload a design first."
	case errors.Is(err, prompt.ErrMissingObject):
		return "Choose an object for the mockup."
	case errors.Is(err, prompt.ErrTooManyFaces):
		return "Each person can have at most 5 face references."
	case errors.Is(err, prompt.ErrPeopleCount):
		return "The number of people does not match the subject type."
	case errors.Is(err, prompt.ErrMissingImage), errors.Is(err, codec.ErrEmpty):
		return "Reference image required."
	case errors.Is(err, prompt.ErrEmptyPrompt), errors.Is(err, gemini.ErrEmptyPrompt):
		return "Describe what you want to generate."
	case errors.Is(err, prompt.ErrUnknownTool):
		return "Unknown tool."
	case errors.Is(err, batch.ErrAlreadyRun), errors.Is(err, batch.ErrEmptyPlan):
		return "Nothing to generate."
	case errors.Is(err, store.ErrNotFound):
		return "Item not found."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	}

	switch gemini.KindOf(err) {
	case gemini.KindAuth:
		return "Invalid API key. Please check your key and try again."
	case gemini.KindQuota:
		return "API quota exceeded. Please wait a moment or check your plan."
	case gemini.KindBadRequest:
		return "The request was rejected as invalid. Try a different prompt or image."
	case gemini.KindNetwork:
		return "Connection failed. Check your network and try again."
	case gemini.KindNoImage:
		return "The model did not return an image. Try rephrasing the prompt."
	case gemini.KindTimeout:
		return "The request timed out. Please try again."
	}

	var storeErr *StorageError
	if errors.As(err, &storeErr) {
		return "Failed to save. Storage is unavailable."
	}
	return "Something went wrong: " + err.Error()
}

// StorageError marks a persistence failure at the controller boundary.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
