package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"redactor/internal/logger"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "Show which OCR engines and recognizers are available",
	Long: `Initialize every configured OCR engine and the PII recognizer and print
whether each one can be used in this environment.`,
	RunE: runEngines,
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}

func runEngines(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("engines")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(60, log)
	defer cancel()

	registry := buildRegistry(ctx, cfg)
	defer registry.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENGINE\tENABLED\tAVAILABLE\tDETAIL")
	for _, st := range registry.Statuses() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Name, yesNo(st.Enabled), yesNo(st.Available), st.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nEngine preference: %s\n", strings.Join(cfg.Fusion.EnginePreference, " > "))
	fmt.Printf("Fusion tolerance: %dpx\n", cfg.Fusion.Tolerance)

	recognizer := "none (pattern detection only)"
	if r := buildRecognizer(cfg, log); r != nil {
		recognizer = r.Name()
	}
	fmt.Printf("PII recognizer: %s\n", recognizer)
	fmt.Printf("Available engines: %d of %d\n", registry.Available(), len(registry.Statuses()))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
