package valueobject

// AuthStateKind tags the outcome of resolving the two token carriers
// on an inbound request.
type AuthStateKind string

const (
	// StateGuest: neither carrier was present.
	StateGuest AuthStateKind = "guest"
	// StateAccessValid: the access carrier verified.
	StateAccessValid AuthStateKind = "access_valid"
	// StateRefreshValid: the access carrier was absent or expired and
	// the refresh carrier verified; a fresh pair was minted and must
	// replace both outbound carriers.
	StateRefreshValid AuthStateKind = "refresh_valid"
	// StateInvalidToken: a carrier was present but tampered, revoked or
	// otherwise unusable. Handled like a guest at the boundary; the
	// failure kind stays server-side.
	StateInvalidToken AuthStateKind = "invalid_token"
)

// AuthState is the tagged result of carrier resolution. Email is set
// for AccessValid and RefreshValid; Rotated is set only for
// RefreshValid.
type AuthState struct {
	Kind    AuthStateKind
	Email   string
	Rotated *TokenPair
}

func Guest() AuthState {
	return AuthState{Kind: StateGuest}
}

func AccessValid(email string) AuthState {
	return AuthState{Kind: StateAccessValid, Email: email}
}

func RefreshValid(email string, rotated *TokenPair) AuthState {
	return AuthState{Kind: StateRefreshValid, Email: email, Rotated: rotated}
}

func InvalidToken() AuthState {
	return AuthState{Kind: StateInvalidToken}
}

// Authenticated reports whether the state carries a resolved principal.
func (s AuthState) Authenticated() bool {
	return s.Kind == StateAccessValid || s.Kind == StateRefreshValid
}
