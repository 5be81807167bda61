package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/slush-dev/pushbridge"
	"gopkg.in/yaml.v3"
)

// yamlOut prints data as a YAML document to w.
func yamlOut(w io.Writer, data any) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	enc.Encode(data)
	enc.Close()
}

// printEvent prints one registration event as a line or a YAML document.
func printEvent(w io.Writer, ev pushbridge.RegistrationEvent, asYAML bool) {
	if asYAML {
		fmt.Fprintln(w, "---")
		yamlOut(w, map[string]any{
			"event_id":  ev.ID.String(),
			"token":     ev.Token,
			"issued_at": ev.IssuedAt.UTC().Format(time.RFC3339),
		})
		return
	}
	if ev.Token == "" {
		fmt.Fprintf(w, ">> TOKEN [%s] (cleared)\n", ev.IssuedAt.Format("15:04:05"))
		return
	}
	fmt.Fprintf(w, ">> TOKEN [%s] %s\n", ev.IssuedAt.Format("15:04:05"), ev.Token)
}
