package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/santelle/santelle/internal/domain"
)

// positiveInt is an int flag that rejects zero and negative values at parse
// time.
type positiveInt int

var _ pflag.Value = (*positiveInt)(nil)

func (p *positiveInt) String() string { return strconv.Itoa(int(*p)) }
func (p *positiveInt) Type() string   { return "int" }

func (p *positiveInt) Set(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	*p = positiveInt(n)
	return nil
}

// readingFlags collects one optional reading flag per biomarker.
type readingFlags struct {
	ph       string
	readings map[domain.Biomarker]*string
}

func addReadingFlags(fs *pflag.FlagSet) *readingFlags {
	rf := &readingFlags{readings: make(map[domain.Biomarker]*string)}
	fs.StringVar(&rf.ph, "ph", "", "pH value, e.g. 4.4")
	for _, b := range domain.QualitativeBiomarkers {
		v := new(string)
		rf.readings[b] = v
		fs.StringVar(v, strings.ReplaceAll(string(b), "_", "-"), "", b.Label()+" reading: - ± + (LE also ++ +++)")
	}
	return rf
}

// patch builds the log patch from the flags that were set.
func (rf *readingFlags) patch() (domain.LogPatch, error) {
	var p domain.LogPatch
	if rf.ph != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(rf.ph), 64)
		if err != nil {
			return p, fmt.Errorf("--ph %q: %w", rf.ph, domain.ErrInvalidReading)
		}
		p.PH = &v
	}
	for _, b := range domain.QualitativeBiomarkers {
		raw := *rf.readings[b]
		if raw == "" {
			continue
		}
		r, err := domain.ParseReading(raw)
		if err != nil {
			return p, fmt.Errorf("%s: %w", b.Label(), err)
		}
		single := domain.ReadingPatch(b, r)
		p = mergePatch(p, single)
	}
	return p, p.Validate()
}

func mergePatch(dst, src domain.LogPatch) domain.LogPatch {
	if src.PH != nil {
		dst.PH = src.PH
	}
	if src.H2O2 != nil {
		dst.H2O2 = src.H2O2
	}
	if src.LE != nil {
		dst.LE = src.LE
	}
	if src.SNA != nil {
		dst.SNA = src.SNA
	}
	if src.BetaG != nil {
		dst.BetaG = src.BetaG
	}
	if src.NAG != nil {
		dst.NAG = src.NAG
	}
	return dst
}
