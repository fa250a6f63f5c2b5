package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMatrix is returned when a colour range is requested for a matrix without cells.
	ErrEmptyMatrix = errors.New("covariance matrix is empty")

	// ErrNonFiniteMatrix is returned when the colour range of a matrix holding nan or inf cells is requested.
	ErrNonFiniteMatrix = errors.New("covariance matrix has non-finite values")

	// ErrMalformedCSV is returned when a covariance CSV is not a square, consistently labelled table.
	ErrMalformedCSV = errors.New("malformed covariance csv")

	// ErrNoSnapshot is returned before the first successful load.
	ErrNoSnapshot = errors.New("no covariance snapshot loaded")
)

// UnknownIndustryError reports an industry name absent from the IndustryMap.
type UnknownIndustryError struct {
	Industry string
}

func (e *UnknownIndustryError) Error() string {
	return fmt.Sprintf("unknown industry %q", e.Industry)
}

// UnknownTickerError reports a ticker listed for an industry but missing from the matrix index.
type UnknownTickerError struct {
	Industry string
	Ticker   string
}

func (e *UnknownTickerError) Error() string {
	if e.Industry == "" {
		return fmt.Sprintf("unknown ticker %q", e.Ticker)
	}
	return fmt.Sprintf("industry %q: unknown ticker %q", e.Industry, e.Ticker)
}
