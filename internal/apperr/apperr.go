package apperr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeRecipe     Code = "RECIPE_ERROR"
	CodeConflict   Code = "CONFLICT"
	CodeAuth       Code = "AUTH_ERROR"
	CodeRemote     Code = "REMOTE_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid request",
		DetailsAllowed: true,
	},
	CodeRecipe: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "basket cannot be resolved",
		DetailsAllowed: true,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "request already in progress",
		DetailsAllowed: true,
	},
	CodeAuth: {
		HTTPStatus:     http.StatusInternalServerError,
		PublicMessage:  "backend authentication failed",
		DetailsAllowed: false,
	},
	CodeRemote: {
		HTTPStatus:     http.StatusInternalServerError,
		PublicMessage:  "backend call failed",
		DetailsAllowed: true,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
}

// Coder is implemented by every error of the taxonomy.
type Coder interface {
	Code() Code
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// CodeOf returns the code of the first coded error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return CodeInternal
}
