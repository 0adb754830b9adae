package service

import (
	"errors"
	"fmt"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *errs.Error) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice. It reports false for errors that carry no type.
func (h *DefaultErrorHandler) Handle(err error) bool {
	if err == nil {
		return true
	}

	var typed *errs.Error
	if !errors.As(err, &typed) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(typed)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *errs.Error) string {
	switch err.Type {
	case errs.ErrNotFound:
		return "Please check that the working directory and subtitle paths exist and are readable"
	case errs.ErrParse:
		return "Please verify the subtitle is a valid SRT file with index, timestamp and text blocks"
	case errs.ErrTranslation:
		return "Please check the Azure endpoint, API key and region, or try a smaller batch size"
	case errs.ErrMux:
		return "Please check that ffmpeg and ffprobe are installed and the video is readable; see the ffmpeg output above"
	case errs.ErrConfig:
		return "Please check the settings file, environment variables and flags"
	case errs.ErrFileWrite:
		return "Please ensure the output directory exists and has write permissions"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

// SafeExecute runs fn and turns a panic into an error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
