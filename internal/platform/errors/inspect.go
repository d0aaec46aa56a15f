package errors

import "errors"

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsBusiness reports whether err is a structured domain error, i.e. one
// caused by caller input or legitimate business state rather than an
// internal failure.
func IsBusiness(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
