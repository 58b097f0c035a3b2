// Package signing produces the request signatures platform APIs demand:
// bilibili's WBI query signature and the script-computed X-Bogus token.
package signing

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error reports a failure to produce a request signature, either while
// obtaining key material or while evaluating the signing script.
type Error struct {
	Engine string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s signing: %v", e.Engine, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	engineWBI     = "wbi"
	mixinKeyLen   = 32
	decoyAlphabet = "ABCDEFGHIJK"
	decoyLen      = 2
)

var mixinKeyEncTab = [64]byte{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// MixinKey permutes raw (img_key + sub_key) through the fixed encoding table
// and keeps the first 32 bytes.
func MixinKey(raw string) (string, error) {
	if len(raw) < len(mixinKeyEncTab) {
		return "", &Error{Engine: engineWBI, Err: fmt.Errorf("raw key is %d bytes, need %d", len(raw), len(mixinKeyEncTab))}
	}
	var b strings.Builder
	b.Grow(mixinKeyLen)
	for _, idx := range mixinKeyEncTab[:mixinKeyLen] {
		b.WriteByte(raw[idx])
	}
	return b.String(), nil
}

// EncodeComponent percent-encodes s for the canonical query. ASCII
// alphanumerics and "-_.~" pass through, the characters "!'()*" are dropped,
// and every other byte becomes %XX.
func EncodeComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c):
			b.WriteByte(c)
		case strings.IndexByte("!'()*", c) >= 0:
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' ||
		'A' <= c && c <= 'Z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// Canonical sorts params by key and joins the encoded k=v pairs with "&".
func Canonical(params map[string]string) string {
	keys := slices.Sorted(maps.Keys(params))
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, EncodeComponent(k)+"="+EncodeComponent(params[k]))
	}
	return strings.Join(pairs, "&")
}

// SignQuery returns the canonical query of params with its w_rid appended.
func SignQuery(params map[string]string, mixinKey string) string {
	query := Canonical(params)
	sum := md5.Sum([]byte(query + mixinKey))
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}

// WBI signs bilibili web API queries.
type WBI struct {
	keys *KeyCache
	now  func() time.Time
	intn func(n int) int
}

// NewWBI creates a WBI signer whose keys come from src, fetched at most once.
func NewWBI(src KeySource) *WBI {
	return &WBI{
		keys: NewKeyCache(src),
		now:  time.Now,
		intn: rand.IntN,
	}
}

// Sign adds the wts timestamp to a copy of params and returns the signed
// query string. cookie is only used if the keys still have to be fetched.
func (w *WBI) Sign(ctx context.Context, cookie string, params map[string]string) (string, error) {
	keys, err := w.keys.Get(ctx, cookie)
	if err != nil {
		return "", err
	}
	mixin, err := MixinKey(keys.Img + keys.Sub)
	if err != nil {
		return "", err
	}

	signed := maps.Clone(params)
	if signed == nil {
		signed = make(map[string]string, 1)
	}
	signed["wts"] = strconv.FormatInt(w.now().Unix(), 10)
	return SignQuery(signed, mixin), nil
}

// Decoy returns a short random string for the dm_* fingerprint parameters.
func (w *WBI) Decoy() string {
	b := make([]byte, decoyLen)
	for i := range b {
		b[i] = decoyAlphabet[w.intn(len(decoyAlphabet))]
	}
	return string(b)
}
