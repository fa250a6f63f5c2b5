package repository

import (
	"context"
	"fmt"
	"os"
	"time"

	"CovDash/internal/domain/models"
	"CovDash/internal/services/covariance"
	applogger "CovDash/pkg/logger"

	"gopkg.in/yaml.v3"
)

// FileSource reads the matrix from a labelled CSV table and the industry
// map from a YAML (or JSON) document of name → ordered tickers.
type FileSource struct {
	matrixPath     string
	industriesPath string
	l              *applogger.Logger
}

func NewFileSource(matrixPath, industriesPath string, l *applogger.Logger) *FileSource {
	return &FileSource{matrixPath: matrixPath, industriesPath: industriesPath, l: l}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Load(ctx context.Context) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	f, err := os.Open(s.matrixPath)
	if err != nil {
		return nil, fmt.Errorf("open matrix: %w", err)
	}
	defer f.Close()

	m, err := covariance.ParseMatrixCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read matrix %s: %w", s.matrixPath, err)
	}

	im, err := readIndustries(s.industriesPath)
	if err != nil {
		return nil, err
	}

	s.l.Debug("file snapshot read",
		applogger.String("matrix", s.matrixPath),
		applogger.String("industries", s.industriesPath),
		applogger.Int("tickers", m.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return &models.Snapshot{Matrix: m, Industries: im, Source: s.Name()}, nil
}

// readIndustries walks the document as a node tree so that a name declared
// with no value ("Utilities:") is kept with an empty ticker list.
func readIndustries(path string) (models.IndustryMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read industries: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse industries %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return models.IndustryMap{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse industries %s: line %d: want a mapping of industry to tickers", path, root.Line)
	}

	im := make(models.IndustryMap, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		tickers := []string{}
		if val.ShortTag() != "!!null" {
			if err := val.Decode(&tickers); err != nil {
				return nil, fmt.Errorf("parse industries %s: industry %q: %w", path, key.Value, err)
			}
			if tickers == nil {
				tickers = []string{}
			}
		}
		im[key.Value] = tickers
	}
	return im, nil
}
