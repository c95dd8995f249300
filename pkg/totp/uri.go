package totp

import (
	"net/url"
	"strconv"
	"strings"
)

// Params describes a provisioning URI.
type Params struct {
	Secret      string // Base32-encoded secret (required)
	AccountName string // Principal label such as an email (required)
	Issuer      string // Service name shown in authenticator apps (required)
	Algorithm   string // Optional, only rendered when not SHA1
	Digits      int    // Optional, only rendered when not 6
	Period      int    // Optional, only rendered when not 30
}

// Validate ensures all required parameters are present and valid.
func (p Params) Validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if _, err := DecodeSecret(p.Secret); err != nil {
		return err
	}
	if strings.TrimSpace(p.AccountName) == "" {
		return ErrMissingAccountName
	}
	if strings.TrimSpace(p.Issuer) == "" {
		return ErrMissingIssuer
	}
	return nil
}

// URI renders the Key URI consumed by authenticator apps:
//
//	otpauth://totp/<issuer>:<label>?secret=<base32>&issuer=<issuer>
//
// The default form is parsed literally by third-party apps, so parameter order is fixed
// and the optional algorithm/digits/period parameters are appended only for non-default values.
func URI(p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("otpauth://totp/")
	b.WriteString(escapeLabel(p.Issuer))
	b.WriteByte(':')
	b.WriteString(escapeLabel(p.AccountName))
	b.WriteString("?secret=")
	b.WriteString(strings.TrimRight(strings.ToUpper(p.Secret), "="))
	b.WriteString("&issuer=")
	b.WriteString(escapeQuery(p.Issuer))

	if p.Algorithm != "" && !strings.EqualFold(p.Algorithm, DefaultAlgorithm) {
		b.WriteString("&algorithm=")
		b.WriteString(strings.ToUpper(p.Algorithm))
	}
	if p.Digits != 0 && p.Digits != DefaultDigits {
		b.WriteString("&digits=")
		b.WriteString(strconv.Itoa(p.Digits))
	}
	if p.Period != 0 && p.Period != DefaultPeriod {
		b.WriteString("&period=")
		b.WriteString(strconv.Itoa(p.Period))
	}

	return b.String(), nil
}

// escapeLabel escapes a label part. The colon separates issuer and account, so it
// is encoded inside either part.
func escapeLabel(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
}

// escapeQuery encodes spaces as %20; several apps show a literal "+".
func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
