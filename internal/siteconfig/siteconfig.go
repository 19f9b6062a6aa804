// Package siteconfig loads the site name -> root directory mapping. The map
// comes from exactly one source: a local file (JSON or YAML), an SSM
// parameter, or an S3 object. All of them share one document shape:
//
//	{"sites": {"docs": "/srv/docs", "media": "./media"}}
package siteconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
	"github.com/keithlinneman/linnemanlabs-filegw/internal/xerrors"
)

// AppDir is the directory name looked up under the XDG config dirs.
const AppDir = "linnemanlabs-filegw"

// maxDocumentBytes bounds remote documents.
const maxDocumentBytes = 1 << 20

// ErrNoConfig is returned by Discover when no candidate file exists.
var ErrNoConfig = errors.New("no site config found")

// Parse decodes a sites document. YAML is a superset of JSON so one decoder
// covers both formats. Keys other than "sites" belong to other consumers of
// the file and are ignored. source only labels error messages.
func Parse(data []byte, source string) (map[string]string, error) {
	var doc struct {
		Sites map[string]any `yaml:"sites"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, xerrors.Newf("%s: document is empty", source)
		}
		return nil, xerrors.Wrapf(err, "%s: decode", source)
	}
	if doc.Sites == nil {
		return nil, xerrors.Newf("%s: missing top-level \"sites\" object", source)
	}

	out := make(map[string]string, len(doc.Sites))
	var errs []error
	for name, v := range doc.Sites {
		root, ok := v.(string)
		if !ok {
			errs = append(errs, fmt.Errorf("%s:sites/%s should be a string, got %T(%v) instead", source, name, v, v))
			continue
		}
		out[name] = root
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Discover returns the first existing config file: config.json then
// sites.yaml in the working directory, then sites.yaml under the XDG config
// dirs.
func Discover() (string, error) {
	for _, name := range []string{"config.json", "sites.yaml"} {
		if fi, err := os.Stat(name); err == nil && fi.Mode().IsRegular() {
			return name, nil
		}
	}
	if p, err := xdg.SearchConfigFile(filepath.Join(AppDir, "sites.yaml")); err == nil {
		return p, nil
	}
	return "", ErrNoConfig
}

// ReadFile loads and parses a local sites document.
func ReadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, xerrors.Newf("site config %s does not exist", path)
		}
		return nil, xerrors.Wrapf(err, "read site config %s", path)
	}
	return Parse(data, path)
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%q is not an s3:// uri", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%q must be s3://bucket/key", uri)
	}
	return bucket, key, nil
}

// SSMAPI is the subset of *ssm.Client the loader uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// S3API is the subset of *s3.Client the loader uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Logger log.Logger

	// File is an explicit local path. Empty means Discover.
	File string

	// SSMParam names a (usually SecureString) parameter holding the document.
	SSMParam string

	// S3URI is s3://bucket/key of the document.
	S3URI string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config
}

type Loader struct {
	opts   Options
	ssm    SSMAPI
	s3     S3API
	logger log.Logger
}

// NewLoader validates the source selection and builds AWS clients only when
// a remote source is configured.
func NewLoader(ctx context.Context, opts Options) (*Loader, error) {
	if opts.SSMParam != "" && opts.S3URI != "" {
		return nil, xerrors.New("at most one of SSMParam and S3URI may be set")
	}
	if opts.S3URI != "" {
		if _, _, err := ParseS3URI(opts.S3URI); err != nil {
			return nil, xerrors.WithStack(err)
		}
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	l := &Loader{opts: opts, logger: opts.Logger}
	if opts.SSMParam == "" && opts.S3URI == "" {
		return l, nil
	}

	var awsCfg aws.Config
	var err error
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}
	l.ssm = ssm.NewFromConfig(awsCfg)
	l.s3 = s3.NewFromConfig(awsCfg)
	return l, nil
}

// Load returns the site map and a description of where it came from.
func (l *Loader) Load(ctx context.Context) (map[string]string, string, error) {
	switch {
	case l.opts.SSMParam != "":
		sites, err := l.fromSSM(ctx)
		return sites, "ssm:" + l.opts.SSMParam, err
	case l.opts.S3URI != "":
		sites, err := l.fromS3(ctx)
		return sites, l.opts.S3URI, err
	}

	path := l.opts.File
	if path == "" {
		p, err := Discover()
		if err != nil {
			return nil, "", xerrors.WithStack(err)
		}
		path = p
	}
	l.logger.Info(ctx, "loading site config", "file", path)
	sites, err := ReadFile(path)
	return sites, path, err
}

func (l *Loader) fromSSM(ctx context.Context) (map[string]string, error) {
	l.logger.Info(ctx, "loading site config", "ssm_param", l.opts.SSMParam)
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}
	return Parse([]byte(*out.Parameter.Value), "ssm:"+l.opts.SSMParam)
}

func (l *Loader) fromS3(ctx context.Context) (map[string]string, error) {
	bucket, key, err := ParseS3URI(l.opts.S3URI)
	if err != nil {
		return nil, xerrors.WithStack(err)
	}
	l.logger.Info(ctx, "loading site config", "bucket", bucket, "key", key)

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get S3 object %s", l.opts.S3URI)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read S3 object %s", l.opts.S3URI)
	}
	if len(data) > maxDocumentBytes {
		return nil, xerrors.Newf("S3 object %s exceeds %d bytes", l.opts.S3URI, maxDocumentBytes)
	}
	return Parse(data, l.opts.S3URI)
}
