package transport

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"

	"github.com/tkrehbiel/blogfed/server/errs"
)

// Headers covered by outbound signatures. Mastodon requires digest on POST.
var (
	postHeaders = []string{"(request-target)", "host", "date", "digest", "content-type"}
	getHeaders  = []string{"(request-target)", "host", "date"}
)

// Identity is the local actor a request is sent as.
type Identity interface {
	KeyID() string
	PrivateKey() crypto.PrivateKey
}

// KeyResolver finds the public key for a signature's keyId.
type KeyResolver interface {
	PublicKey(ctx context.Context, keyID string) (crypto.PublicKey, error)
}

func computeDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(hash[:])
}

func computeSigningString(headers []string, r *http.Request) string {
	lines := make([]string, 0, len(headers))
	for _, hdr := range headers {
		switch hdr {
		case "(request-target)":
			lines = append(lines, fmt.Sprintf("(request-target): %s %s", strings.ToLower(r.Method), r.URL.RequestURI()))
		case "host":
			host := r.Header.Get("Host")
			if host == "" {
				host = r.Host
			}
			lines = append(lines, "host: "+host)
		default:
			lines = append(lines, fmt.Sprintf("%s: %s", hdr, r.Header.Get(hdr)))
		}
	}
	return strings.Join(lines, "\n")
}

// sign adds Digest and Signature headers to r.
// The signature is built by hand; httpsig's signer output was not accepted by Mastodon.
func sign(privateKey crypto.PrivateKey, keyID string, now time.Time, r *http.Request, headers []string) error {
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return errs.New(errs.InvalidInput, "cannot sign with a %T key", privateKey)
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return err
		}
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.Header.Set("Digest", "SHA-256="+computeDigest(body))

	signingString := computeSigningString(headers, r)

	created := now.UTC()
	expires := created.Add(time.Hour)
	hash := sha256.Sum256([]byte(signingString))
	signature, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, hash[:])
	if err != nil {
		return err
	}
	r.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",created=%d,expires=%d,headers="%s",signature="%s"`,
		keyID, created.Unix(), expires.Unix(), strings.Join(headers, " "), base64.StdEncoding.EncodeToString(signature)))
	return nil
}

// Verify checks the HTTP signature of an inbound request and the body digest
// when one is present. It returns the verified keyId.
func Verify(ctx context.Context, keys KeyResolver, r *http.Request) (string, error) {
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return "", errs.Wrap(errs.Forbidden, err, "no signature")
	}
	keyID := verifier.KeyId()
	pubKey, err := keys.PublicKey(ctx, keyID)
	if err != nil {
		return keyID, err
	}
	if pubKey == nil {
		return keyID, errs.New(errs.Forbidden, "no public key for [%s]", keyID)
	}
	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return keyID, errs.Wrap(errs.Forbidden, err, "bad signature from [%s]", keyID)
	}
	if digest := r.Header.Get("Digest"); strings.HasPrefix(digest, "SHA-256=") && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return keyID, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if digest != "SHA-256="+computeDigest(body) {
			return keyID, errs.New(errs.Forbidden, "digest mismatch from [%s]", keyID)
		}
	}
	return keyID, nil
}
