package ports

import "github.com/bft-labs/washline/pkg/log"

// Logger is the structured logging port. It aliases the public log package
// so adapters and embedding applications share one interface.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors.
var (
	String   = log.String
	Int      = log.Int
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
	Any      = log.Any
)
