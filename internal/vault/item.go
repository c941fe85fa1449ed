package vault

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// itemExtension is the on-disk suffix for item files.
const itemExtension = ".md"

// Action names what the executor should do once an item is approved.
type Action struct {
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params,omitempty"`
}

// Item is one unit of work tracked through the vault. The identifier is
// assigned once and never changes as the item moves between states; the body
// is an opaque blob preserved byte for byte across transitions.
type Item struct {
	ID          string
	Source      string
	Subject     string
	Action      *Action
	Annotations map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Body        []byte

	// State is derived from the item's current directory, not serialized.
	State State

	// Invalid is set by List when the file could not be decoded, so the
	// approval gate can reject it instead of leaving the queue blocked.
	Invalid error
}

// Draft is what a producer hands the store: everything an Item needs except
// the identifier and timestamps, which Put assigns.
type Draft struct {
	Source  string
	Subject string
	Action  *Action
	Body    []byte
}

type frontmatter struct {
	ID          string            `yaml:"id"`
	Source      string            `yaml:"source"`
	Subject     string            `yaml:"subject,omitempty"`
	Action      *Action           `yaml:"action,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
	Created     time.Time         `yaml:"created"`
	Updated     time.Time         `yaml:"updated"`
}

const frontmatterFence = "---\n"

// Encode renders the item as a markdown file with YAML frontmatter, the
// format a human reviews in the pending_approval directory.
func (i *Item) Encode() ([]byte, error) {
	fm := frontmatter{
		ID:          i.ID,
		Source:      i.Source,
		Subject:     i.Subject,
		Action:      i.Action,
		Annotations: i.Annotations,
		Created:     i.CreatedAt.UTC(),
		Updated:     i.UpdatedAt.UTC(),
	}
	head, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(head) + len(i.Body) + 16)
	buf.WriteString(frontmatterFence)
	buf.Write(head)
	buf.WriteString(frontmatterFence)
	buf.Write(i.Body)
	return buf.Bytes(), nil
}

// DecodeItem parses an item file. A missing or unparsable frontmatter block,
// or one without an identifier or source, yields ErrMalformedItem.
func DecodeItem(data []byte) (*Item, error) {
	head, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	var fm frontmatter
	if err := yaml.Unmarshal(head, &fm); err != nil {
		return nil, fmt.Errorf("%w: frontmatter: %v", ErrMalformedItem, err)
	}
	if strings.TrimSpace(fm.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedItem)
	}
	if strings.TrimSpace(fm.Source) == "" {
		return nil, fmt.Errorf("%w: missing source", ErrMalformedItem)
	}
	return &Item{
		ID:          fm.ID,
		Source:      fm.Source,
		Subject:     fm.Subject,
		Action:      fm.Action,
		Annotations: fm.Annotations,
		CreatedAt:   fm.Created,
		UpdatedAt:   fm.Updated,
		Body:        body,
	}, nil
}

func splitFrontmatter(data []byte) (head, body []byte, err error) {
	if !bytes.HasPrefix(data, []byte(frontmatterFence)) {
		return nil, nil, fmt.Errorf("%w: no frontmatter", ErrMalformedItem)
	}
	rest := data[len(frontmatterFence):]
	end := bytes.Index(rest, []byte("\n"+frontmatterFence))
	if end < 0 {
		return nil, nil, fmt.Errorf("%w: unterminated frontmatter", ErrMalformedItem)
	}
	head = rest[:end+1]
	body = rest[end+1+len(frontmatterFence):]
	return head, body, nil
}

// ValidateAction reports whether the item carries a usable action
// specification. Items without one cannot pass the approval gate.
func (i *Item) ValidateAction() error {
	if i.Action == nil {
		return fmt.Errorf("%w: missing action specification", ErrMalformedItem)
	}
	if strings.TrimSpace(i.Action.Kind) == "" {
		return fmt.Errorf("%w: action kind must be set", ErrMalformedItem)
	}
	return nil
}

// FileName returns the item's on-disk name.
func (i *Item) FileName() string {
	return i.ID + itemExtension
}
