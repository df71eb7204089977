// Command probe loads the widget extension into a simulated host and lists
// or calls its bound methods.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/gdext/config"
)

type argList []string

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var (
		args        argList
		configPath  = flag.String("config", "", "Path to gdext.toml (default: search upward from the working directory)")
		className   = flag.String("class", "Widget", "Class of the method to call")
		method      = flag.String("call", "", "Method to call")
		list        = flag.Bool("list", false, "List bound methods and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Var(&args, "arg", "Method argument (repeatable)")
	flag.Parse()

	path, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive || (*method == "" && !*list && term.IsTerminal(int(os.Stdout.Fd()))) {
		if err := runInteractive(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(path, *className, *method, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfig returns the configuration file to apply, or "" when there
// is none.
func resolveConfig(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil || cfg == nil {
		return "", err
	}
	return cfg.Path, nil
}

func run(configPath, className, method string, args []string) error {
	s, err := openSession(configPath, nil)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer s.close()

	v := s.rt.Version()
	fmt.Printf("Extension: %s\n", s.rt.Config().Extension.Name)
	fmt.Printf("Host: %d.%d.%d %s\n", v.Major, v.Minor, v.Patch, v.Status)
	fmt.Printf("Classes: %s\n", strings.Join(s.rt.Classes().Classes(), ", "))

	if method == "" {
		fmt.Println("\nMethods:")
		for _, m := range s.methods() {
			fmt.Printf("  %s\n", signature(m))
		}
		return nil
	}

	m, ok := s.findMethod(className, method)
	if !ok {
		return fmt.Errorf("method %s.%s not found", className, method)
	}
	result, err := s.call(m, args)
	if err != nil {
		return err
	}
	fmt.Printf("\nResult: %s\n", result)
	s.rt.Logger().Debug("probe call", zap.String("class", className), zap.String("method", method), zap.String("result", result))
	return nil
}

func signature(m methodInfo) string {
	params := make([]string, len(m.params))
	for i, p := range m.params {
		params[i] = p.name + ": " + typeName(p.typ)
		if p.hasDefault {
			params[i] += " = ..."
		}
	}
	s := m.class + "." + m.name + "(" + strings.Join(params, ", ") + ")"
	if m.hasResult {
		s += " -> " + typeName(m.result)
	}
	if m.static {
		s = "static " + s
	}
	return s
}
