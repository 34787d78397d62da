package research

import "fmt"

// Kind tags the outcome of a research run.
type Kind int

const (
	// KindHook means a usable hook was found.
	KindHook Kind = iota + 1
	// KindNotFound means research completed but nothing worth mentioning
	// turned up. Retrying will not help.
	KindNotFound
	// KindError means research could not complete (network, LLM, quota).
	// The caller should retry later.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindHook:
		return "hook"
	case KindNotFound:
		return "not_found"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is what Research returns. Exactly one of Hook, Reason or Err is
// meaningful, selected by Kind.
type Result struct {
	Kind   Kind
	Hook   string
	Reason string
	Err    error
}

func Found(hook string) Result { return Result{Kind: KindHook, Hook: hook} }

func NotFound(reason string) Result { return Result{Kind: KindNotFound, Reason: reason} }

func Failed(err error) Result { return Result{Kind: KindError, Err: err} }
