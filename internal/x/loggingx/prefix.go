package loggingx

import (
	"fmt"
	"strings"

	"github.com/dogmatiq/dodeca/logging"
)

// WithPrefix returns a logger that prepends a prefix to each message sent to
// target.
func WithPrefix(target logging.Logger, f string, v ...interface{}) logging.Logger {
	if target == nil {
		target = logging.DefaultLogger
	}

	p := fmt.Sprintf(f, v...)

	return &prefixed{
		target: target,
		prefix: p,
		format: strings.ReplaceAll(p, "%", "%%"),
	}
}

type prefixed struct {
	target logging.Logger
	prefix string
	format string // prefix escaped for use in a format string
}

func (p *prefixed) Log(f string, v ...interface{}) {
	p.target.Log(p.format+f, v...)
}

func (p *prefixed) LogString(s string) {
	p.target.LogString(p.prefix + s)
}

func (p *prefixed) Debug(f string, v ...interface{}) {
	p.target.Debug(p.format+f, v...)
}

func (p *prefixed) DebugString(s string) {
	p.target.DebugString(p.prefix + s)
}

func (p *prefixed) IsDebug() bool {
	return p.target.IsDebug()
}
