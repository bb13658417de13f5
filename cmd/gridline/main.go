// Command gridline evaluates, converts and checks gridline documents.
//
// Documents are read and written by extension: .grd (line format), .csv and
// .xlsx. Markdown (.md) is an export format only.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javajack/gridline"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gridline",
		Short:        "Evaluate, convert and check gridline spreadsheets",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "gridline.yaml", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().String("sheet", "", "Worksheet to read or write for .xlsx files")
	rootCmd.PersistentFlags().StringArrayP("functions", "f", nil, "YAML file of formula functions to load (repeatable)")

	evalCmd := &cobra.Command{
		Use:   "eval <file>",
		Short: "Load a document, apply edits and print cell values",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	}
	evalCmd.Flags().StringArray("import", nil, "CSV file to write into the document, as FILE@REF (repeatable)")
	evalCmd.Flags().StringArray("set", nil, "Edit to apply before printing, as REF=INPUT (repeatable)")
	evalCmd.Flags().StringArray("cell", nil, "Only print these cells (repeatable)")
	evalCmd.Flags().Bool("describe", false, "Print the precedent tree of each --cell")
	evalCmd.Flags().String("out", "", "Save the edited document to this path")

	convertCmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert between .grd, .csv and .xlsx, or export to .md",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert,
	}
	convertCmd.Flags().Bool("formulas", false, "Write formula source instead of values to .csv")

	checkCmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Report formula errors and lost references",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gridline %s\n", version)
		},
	}

	rootCmd.AddCommand(evalCmd, convertCmd, checkCmd, versionCmd)
	return rootCmd
}

// session bundles what every subcommand needs.
type session struct {
	cfg   Config
	csv   gridline.CSVOptions
	sheet string
}

func newSession(cmd *cobra.Command) (*session, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read --config flag: %w", err)
	}
	cfg, err := loadConfig(path, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	csvOpts, err := cfg.csvOptions()
	if err != nil {
		return nil, err
	}
	if files, _ := cmd.Flags().GetStringArray("functions"); len(files) > 0 {
		cfg.Functions = append(cfg.Functions, files...)
	}
	sheet, _ := cmd.Flags().GetString("sheet")
	return &session{cfg: cfg, csv: csvOpts, sheet: sheet}, nil
}

func (s *session) newDocument(cmd *cobra.Command) (*gridline.Document, error) {
	level, err := parseLevel(s.cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), level)
	doc, err := gridline.NewDocument(s.cfg.documentOptions(logger)...)
	if err != nil {
		return nil, err
	}
	for _, path := range s.cfg.Functions {
		n, err := doc.LoadFunctions(path)
		if err != nil {
			return nil, err
		}
		logger.Debug("functions loaded", slog.String("path", path), slog.Int("count", n))
	}
	return doc, nil
}

func (s *session) open(cmd *cobra.Command, path string) (*gridline.Document, error) {
	doc, err := s.newDocument(cmd)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch formatOf(path) {
	case ".md":
		err = fmt.Errorf("markdown is an export format")
	case ".csv":
		err = doc.LoadCSV(f, s.csv)
	case ".xlsx":
		err = doc.LoadXLSX(f, s.sheet)
	default:
		err = doc.Load(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (s *session) save(doc *gridline.Document, path string, formulas bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	switch formatOf(path) {
	case ".csv":
		opts := s.csv
		opts.Formulas = formulas
		err = doc.WriteCSV(f, opts)
	case ".xlsx":
		err = doc.WriteXLSX(f, s.sheet)
	case ".md":
		err = doc.WriteMarkdown(f)
	default:
		err = doc.Save(f)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func formatOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func runEval(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	doc, err := s.open(cmd, args[0])
	if err != nil {
		return err
	}

	imports, _ := cmd.Flags().GetStringArray("import")
	for _, spec := range imports {
		if err := s.importCSV(doc, spec); err != nil {
			return err
		}
	}

	edits, _ := cmd.Flags().GetStringArray("set")
	for _, edit := range edits {
		addr, input, ok := strings.Cut(edit, "=")
		if !ok {
			return fmt.Errorf("--set %q: want REF=INPUT", edit)
		}
		ref, err := gridline.ParseCellRef(strings.TrimSpace(addr))
		if err != nil {
			return fmt.Errorf("--set %q: %w", edit, err)
		}
		if err := doc.SetCell(ref, input); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	cells, _ := cmd.Flags().GetStringArray("cell")
	describe, _ := cmd.Flags().GetBool("describe")
	if len(cells) == 0 {
		for _, ref := range doc.Refs() {
			fmt.Fprintf(out, "%s: %s\n", ref, doc.Display(ref))
		}
	}
	for _, addr := range cells {
		ref, err := gridline.ParseCellRef(addr)
		if err != nil {
			return fmt.Errorf("--cell %q: %w", addr, err)
		}
		if describe {
			fmt.Fprint(out, doc.Describe(ref))
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", ref, doc.Display(ref))
	}

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		return s.save(doc, path, false)
	}
	return nil
}

// importCSV applies an --import FILE@REF flag. REF defaults to A1.
func (s *session) importCSV(doc *gridline.Document, spec string) error {
	path, addr, found := strings.Cut(spec, "@")
	at := gridline.CellRef{}
	if found {
		ref, err := gridline.ParseCellRef(strings.TrimSpace(addr))
		if err != nil {
			return fmt.Errorf("--import %q: %w", spec, err)
		}
		at = ref
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("--import %q: %w", spec, err)
	}
	defer f.Close()
	if _, err := doc.ImportCSV(f, at, s.csv); err != nil {
		return fmt.Errorf("--import %q: %w", spec, err)
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	doc, err := s.open(cmd, args[0])
	if err != nil {
		return err
	}
	formulas, _ := cmd.Flags().GetBool("formulas")
	if err := s.save(doc, args[1], formulas); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d cells)\n", args[1], len(doc.Refs()))
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	doc, err := s.open(cmd, args[0])
	if err != nil {
		return err
	}
	issues := doc.Validate()
	errs := 0
	for _, issue := range issues {
		fmt.Fprintln(cmd.OutOrStdout(), issue)
		if issue.Severity == gridline.SeverityError {
			errs++
		}
	}
	if errs > 0 {
		return fmt.Errorf("%d formula error(s) in %s", errs, args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d warning(s))\n", args[0], len(issues))
	return nil
}
