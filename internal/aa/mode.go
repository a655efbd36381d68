package aa

import "strings"

// Mode selects where consents and financial data come from. It is fixed for
// the lifetime of a ConsentManager.
type Mode string

const (
	ModeMock Mode = "mock"
	ModeLive Mode = "live"
)

// ModeFor returns ModeLive when a backend base URL is configured.
func ModeFor(baseURL string) Mode {
	if strings.TrimSpace(baseURL) == "" {
		return ModeMock
	}
	return ModeLive
}

func (m Mode) String() string {
	return string(m)
}

func (m Mode) IsValid() bool {
	return m == ModeMock || m == ModeLive
}
