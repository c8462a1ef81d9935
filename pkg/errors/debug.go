package errors

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	SQLiteConstraint bool   `json:"sqlite_constraint,omitempty"`
	SQLiteMessage    string `json:"sqlite_message,omitempty"`
}

// Dump flattens an error chain for structured logs.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	// sqlite reports constraint failures only through the message text
	root := d.Chain[len(d.Chain)-1]
	if strings.Contains(root, "constraint failed") {
		d.SQLiteConstraint = true
		d.SQLiteMessage = root
	}

	return d
}
