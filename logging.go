package mainloop

import (
	"github.com/joeycumines/logiface"
)

// Logger is the structured logger accepted by [WithLogger]. A nil
// *Logger is valid and disables logging; logiface builders are
// nil-receiver safe, so call sites never guard.
type Logger = logiface.Logger[logiface.Event]
