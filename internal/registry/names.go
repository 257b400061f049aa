package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/skop/internal/ir"
)

// Animals is the second half of generated investigation names.
var Animals = []string{
	"Tiger", "Eagle", "Wolf", "Bear", "Lion", "Shark", "Panther", "Falcon", "Fox", "Lynx",
	"Cobra", "Raven", "Hawk", "Leopard", "Jaguar", "Viper", "Phoenix", "Dragon", "Stallion", "Owl",
	"Cat", "Dog", "Rabbit", "Turtle", "Penguin", "Octopus", "Whale", "Elephant", "Giraffe", "Zebra",
}

// RandomName returns a "Colour Animal" name and its palette colour.
// A nil r uses the global source.
func RandomName(r *rand.Rand) (string, ir.Color) {
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}
	c := ir.Palette[intN(len(ir.Palette))]
	animal := Animals[intN(len(Animals))]
	return c.Name + " " + animal, c.Color
}

// FileName turns an investigation name into a file name: accents stripped,
// lower case, runs of other characters collapsed to "_", with the
// investigation extension.
func FileName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		b.WriteString("investigation")
	}
	return b.String() + ir.FileExtension
}

// UniquePath returns a path in dir for name that does not exist yet,
// appending _2, _3, ... to the base name when needed.
func UniquePath(dir, name string) (string, error) {
	base := strings.TrimSuffix(FileName(name), ir.FileExtension)
	for i := 1; i < 10000; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		path := filepath.Join(dir, candidate+ir.FileExtension)
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free file name for %q in %s", name, dir)
}
