// Package identifier generates short, collision-resistant random strings
// used to disambiguate names (temporary directories) that might otherwise
// collide.
package identifier

import (
	"crypto/rand"

	"github.com/eknkc/basex"
	"github.com/pkg/errors"
)

// alphabet is the Base62 alphabet used to render random bytes as a
// filesystem- and log-line-safe string.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// suffixEntropyBytes is the number of random bytes used for a generated
// suffix. This is intentionally small (unlike a full collision-resistant
// identifier) since it only needs to disambiguate names that already carry a
// timestamp and a monotonic counter.
const suffixEntropyBytes = 6

var encoder *basex.Encoding

func init() {
	enc, err := basex.NewEncoding(alphabet)
	if err != nil {
		panic("unable to initialize base62 encoder")
	}
	encoder = enc
}

// RandomSuffix returns a short random Base62-encoded string.
func RandomSuffix() (string, error) {
	buf := make([]byte, suffixEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "unable to read random data")
	}
	return encoder.Encode(buf), nil
}
