package legalize

import (
	"fmt"

	"github.com/sarchlab/conform/ir"
)

// InternalError reports a violated precondition of the legalizer. It always
// points at a defect in the IR handed to it.
type InternalError struct {
	Func string
	Step string
	Inst ir.InstID
	Msg  string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("legalize %s: step %s, inst %d: %s", e.Func, e.Step, e.Inst, e.Msg)
}

func (c *fixCtx) fatal(id ir.InstID, format string, args ...any) {
	panic(&InternalError{
		Func: c.f.Name,
		Step: c.step,
		Inst: id,
		Msg:  fmt.Sprintf(format, args...),
	})
}
