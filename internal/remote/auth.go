package remote

// Authenticator provides credentials for registry operations. A nil or
// empty result falls back to the ambient keychain.
type Authenticator interface {
	Authenticate(registry string) (username, password string, err error)
}

// KeychainAuthenticator defers entirely to the system keychain.
type KeychainAuthenticator struct{}

func (KeychainAuthenticator) Authenticate(registry string) (string, string, error) {
	return "", "", nil
}
