package sonar

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PropertiesFile is the scanner configuration written into each checkout.
const PropertiesFile = "sonar-project.properties"

// Properties renders the scanner configuration of a project.
func Properties(key string) string {
	return strings.Join([]string{
		"sonar.projectKey=" + key,
		"sonar.sources=.",
		"sonar.sourceEncoding=UTF-8",
		"sonar.inclusions=**/*.js,**/*.ts",
		"sonar.exclusions=**/test/**/*,**/tests/**/*,**/*test*",
		"sonar.coverage.exclusions=**/*",
		"sonar.cpd.exclusions=**/*",
	}, "\n")
}

// Scanner runs the sonar-scanner CLI.
type Scanner struct {
	Path    string // binary, defaults to sonar-scanner
	HostURL string
	Token   string
}

// WriteProperties (re)generates the properties file in dir. Checkouts clean the
// working tree, so this runs after every checkout.
func (s *Scanner) WriteProperties(dir, key string) error {
	path := filepath.Join(dir, PropertiesFile)
	if err := os.WriteFile(path, []byte(Properties(key)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", PropertiesFile, err)
	}
	return nil
}

// Run executes the scanner in dir. The server, not the exit status, decides
// whether an analysis landed, so callers usually log a failure and move on.
func (s *Scanner) Run(ctx context.Context, dir string) ([]byte, error) {
	bin := s.Path
	if bin == "" {
		bin = "sonar-scanner"
	}
	var args []string
	if s.Token != "" {
		args = append(args, "-Dsonar.login="+s.Token)
	}
	if s.HostURL != "" {
		args = append(args, "-Dsonar.host.url="+s.HostURL)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w", bin, err)
	}
	return out, nil
}
