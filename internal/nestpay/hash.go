// Package nestpay implements the authenticity digest of the Nestpay
// (ALLSECURE) card gateway protocol.
//
// The digest is SHA-512 over the UTF-8 input, rendered as lowercase hex,
// then base64 encoded (standard alphabet, padded). Encoding the hex text
// rather than the raw digest is what the gateway expects.
package nestpay

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	// HashParamsSeparator separates field names in the hashparams value.
	HashParamsSeparator = ":"

	// VerifyJoinSeparator joins field values for callback verification.
	VerifyJoinSeparator = "|"
)

// PaymentRequest holds the fields hashed when initiating a payment.
type PaymentRequest struct {
	ClientID    string `json:"clientid"`
	OrderID     string `json:"oid"`
	Amount      string `json:"amount"`
	OkURL       string `json:"okUrl"`
	FailURL     string `json:"failUrl"`
	TxnType     string `json:"islemtipi"`
	Installment string `json:"taksit,omitempty"`
	Random      string `json:"rnd"`
}

// MissingFields returns the JSON names of required fields that are empty.
// Installment is optional.
func (r *PaymentRequest) MissingFields() []string {
	var missing []string

	required := []struct {
		name  string
		value string
	}{
		{"clientid", r.ClientID},
		{"oid", r.OrderID},
		{"amount", r.Amount},
		{"okUrl", r.OkURL},
		{"failUrl", r.FailURL},
		{"islemtipi", r.TxnType},
		{"rnd", r.Random},
	}
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}

	return missing
}

// Fields returns the values in gateway hash order.
func (r *PaymentRequest) Fields() []string {
	return []string{
		r.ClientID,
		r.OrderID,
		r.Amount,
		r.OkURL,
		r.FailURL,
		r.TxnType,
		r.Installment,
		r.Random,
	}
}

// Compute returns the digest used when initiating a payment: the field
// values concatenated without separator, followed by the secret.
func Compute(fields []string, secret string) string {
	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(f)
	}
	sb.WriteString(secret)
	return digest(sb.String())
}

// Sign returns the digest a gateway attaches to a callback whose hashparams
// lists the given field names. Verify accepts exactly this value.
func Sign(hashParams string, fields map[string]string, secret string) string {
	return digest(verificationInput(hashParams, fields, secret))
}

// Verify reports whether receivedHash authenticates fields. The field names
// and their order come from hashParams; values are looked up
// case-insensitively and default to "". Missing inputs yield false.
func Verify(receivedHash, hashParams string, fields map[string]string, secret string) bool {
	if receivedHash == "" || hashParams == "" {
		return false
	}

	expected := digest(verificationInput(hashParams, fields, secret))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(receivedHash)) == 1
}

// Lookup returns the value stored under name, preferring an exact key match
// and falling back to a case-insensitive one.
func Lookup(fields map[string]string, name string) (string, bool) {
	if v, ok := fields[name]; ok {
		return v, true
	}

	for k, v := range fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}

	return "", false
}

func verificationInput(hashParams string, fields map[string]string, secret string) string {
	names := strings.Split(hashParams, HashParamsSeparator)

	values := make([]string, 0, len(names)+1)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		v, _ := Lookup(fields, name)
		values = append(values, v)
	}
	values = append(values, secret)

	return strings.Join(values, VerifyJoinSeparator)
}

func digest(input string) string {
	sum := sha512.Sum512([]byte(input))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
}
