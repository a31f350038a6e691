package dirauth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// RegisterIdentityMessage carries a registration through the command handler.
type RegisterIdentityMessage struct {
	Registration
	// Result is filled in on success.
	Result *RegistrationResult `json:"-"`
}

func (e RegisterIdentityMessage) Type() string { return "identity.register" }

// RegisterIdentityHandler runs registrations with a bounded timeout.
type RegisterIdentityHandler struct {
	auther  *Auther
	timeout time.Duration
}

// NewRegisterIdentityHandler returns a handler bound to the orchestrator.
func NewRegisterIdentityHandler(auther *Auther) *RegisterIdentityHandler {
	return &RegisterIdentityHandler{
		auther:  auther,
		timeout: time.Second * 10,
	}
}

func (h *RegisterIdentityHandler) Execute(ctx context.Context, event *RegisterIdentityMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during identity registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterIdentityHandler) execute(ctx context.Context, event *RegisterIdentityMessage) error {
	if event == nil {
		return goerrors.New("registration message is required", goerrors.CategoryBadInput)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.auther.Register(ctx, event.Registration)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "identity registration failed")
	}

	event.Result = result
	return nil
}
