package recordModel

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type FieldKind string

const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
	KindList   FieldKind = "list"
)

type FieldSpec struct {
	Name        string    `yaml:"name" json:"name"`
	Kind        FieldKind `yaml:"kind" json:"kind"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// Schema is the fixed set of fields every Record carries, in column order.
type Schema struct {
	Name   string      `yaml:"name" json:"name"`
	Fields []FieldSpec `yaml:"fields" json:"fields"`
}

func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func (s Schema) Names() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q has no fields", s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field #%d has no name", i+1)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Kind {
		case KindText, KindNumber, KindDate, KindList:
		default:
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

// LoadSchema reads a YAML schema file. Fields without a kind default to text.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	for i := range s.Fields {
		if s.Fields[i].Kind == "" {
			s.Fields[i].Kind = KindText
		}
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(strings.TrimSuffix(pathBase(path), ".yaml"), ".yml")
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

func (s Schema) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

func pathBase(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// DefaultSchema is the bid-invitation header used when no schema file is configured.
func DefaultSchema() Schema {
	return Schema{
		Name: "procurement",
		Fields: []FieldSpec{
			{Name: "ten_goi_thau", Kind: KindText, Required: true, Description: "Tên gói thầu (package name), right-hand cell of the 'Tên gói thầu' row, without the package code"},
			{Name: "chu_dau_tu", Kind: KindText, Required: true, Description: "Chủ đầu tư (investor / procuring entity)"},
			{Name: "muc_dich", Kind: KindText, Description: "Mục đích (purpose of the package)"},
			{Name: "pham_vi", Kind: KindText, Description: "Phạm vi công việc (scope of work)"},
			{Name: "thoi_gian_bao_hanh", Kind: KindText, Description: "Thời gian bảo hành (warranty period), e.g. '12 tháng'"},
			{Name: "thoi_gian_hoan_thanh", Kind: KindText, Description: "Thời gian thực hiện / hoàn thành (completion time)"},
			{Name: "can_cu", Kind: KindList, Description: "Căn cứ pháp lý (legal bases: laws, decrees, decisions)"},
			{Name: "so_buoc", Kind: KindNumber, Description: "Number of process steps listed in the Chương V work table"},
			{Name: "ngay_phat_hanh", Kind: KindDate, Description: "Ngày phát hành hồ sơ mời thầu (issue date)"},
			{Name: "gia_goi_thau", Kind: KindNumber, Description: "Giá gói thầu (package price, VND)"},
		},
	}
}
