package limiters

import (
	"context"
	"strings"

	"github.com/MrEthical07/authflow/internal/rate"
)

// Action names a rate-limited entry point.
type Action string

const (
	ActionRegister     Action = "register"
	ActionResetRequest Action = "reset_request"
	ActionCredential   Action = "credential"
	ActionSecondFactor Action = "second_factor"
	ActionTokenRedeem  Action = "token_redeem"
)

// Subject carries the identities an attempt is counted against. Empty fields are
// not counted.
type Subject struct {
	IP        string
	Email     string
	AccountID string
}

// Guard evaluates every key of a Subject under the policy of an Action.
type Guard struct {
	limiter        *rate.Limiter
	policies       map[Action]rate.Policy
	resetOnSuccess bool
}

// NewGuard returns a Guard. Actions missing from policies are not limited.
func NewGuard(limiter *rate.Limiter, policies map[Action]rate.Policy, resetOnSuccess bool) *Guard {
	copied := make(map[Action]rate.Policy, len(policies))
	for action, p := range policies {
		copied[action] = p
	}
	return &Guard{limiter: limiter, policies: copied, resetOnSuccess: resetOnSuccess}
}

// Check counts one attempt for action against the subject's origin and
// identity keys. It returns rate.ErrRateLimited if any key is exhausted.
func (g *Guard) Check(ctx context.Context, action Action, s Subject) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	policy, ok := g.policies[action]
	if !ok {
		return nil
	}
	return g.limiter.Allow(ctx, policy, keys(action, s)...)
}

// Succeeded clears the identity-scoped windows for action after a completed
// transition. The network-origin window is never cleared.
func (g *Guard) Succeeded(ctx context.Context, action Action, s Subject) error {
	if g == nil || g.limiter == nil || !g.resetOnSuccess {
		return nil
	}
	s.IP = ""
	return g.limiter.Clear(ctx, keys(action, s)...)
}

func keys(action Action, s Subject) []string {
	out := make([]string, 0, 3)
	prefix := string(action) + ":"
	if s.IP != "" {
		out = append(out, prefix+"ip:"+s.IP)
	}
	if email := strings.ToLower(strings.TrimSpace(s.Email)); email != "" {
		out = append(out, prefix+"email:"+email)
	}
	if s.AccountID != "" {
		out = append(out, prefix+"acct:"+s.AccountID)
	}
	return out
}
