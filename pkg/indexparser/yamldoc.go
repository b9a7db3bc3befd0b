// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexparser

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// rawPosition mirrors the index's {Line, Column} pair.
type rawPosition struct {
	Line   int `yaml:"Line"`
	Column int `yaml:"Column"`
}

// rawLocation mirrors the index's {FileURI, Start, End} triple.
type rawLocation struct {
	FileURI string      `yaml:"FileURI"`
	Start   rawPosition `yaml:"Start"`
	End     rawPosition `yaml:"End"`
}

func (l rawLocation) toLocation() graphmodel.Location {
	return graphmodel.Location{
		FileURI: l.FileURI,
		Start:   graphmodel.Position{Line: l.Start.Line, Column: l.Start.Column},
		End:     graphmodel.Position{Line: l.End.Line, Column: l.End.Column},
	}
}

// rawContainer mirrors the optional Container.ID carried by a reference.
type rawContainer struct {
	ID string `yaml:"ID"`
}

// rawReference mirrors one entry of a References document.
type rawReference struct {
	Kind      int           `yaml:"Kind"`
	Location  rawLocation   `yaml:"Location"`
	Container *rawContainer `yaml:"Container,omitempty"`
}

// rawSymInfo mirrors the index's SymInfo block.
type rawSymInfo struct {
	Kind string `yaml:"Kind"`
	Lang string `yaml:"Lang"`
}

// rawDoc mirrors a single YAML document: a Symbol document carries SymInfo, a
// References document carries References and omits SymInfo.
type rawDoc struct {
	ID                   string          `yaml:"ID"`
	Name                 string          `yaml:"Name"`
	Scope                string          `yaml:"Scope"`
	SymInfo              *rawSymInfo     `yaml:"SymInfo,omitempty"`
	CanonicalDeclaration *rawLocation    `yaml:"CanonicalDeclaration,omitempty"`
	Definition           *rawLocation    `yaml:"Definition,omitempty"`
	Signature            string          `yaml:"Signature,omitempty"`
	ReturnType           string          `yaml:"ReturnType,omitempty"`
	Type                 string          `yaml:"Type,omitempty"`
	Documentation        string          `yaml:"Documentation,omitempty"`
	TemplateParameters   []string        `yaml:"TemplateParameters,omitempty"`
	References           []rawReference  `yaml:"References,omitempty"`
}

// isSymbolDoc reports whether the document describes a symbol (has SymInfo)
// as opposed to a reference set.
func (d rawDoc) isSymbolDoc() bool {
	return d.SymInfo != nil
}

func mapKind(kind string) graphmodel.SymbolKind {
	switch kind {
	case "Function":
		return graphmodel.KindFunction
	case "Method", "InstanceMethod", "StaticMethod":
		return graphmodel.KindMethod
	case "Struct":
		return graphmodel.KindStruct
	case "Class":
		return graphmodel.KindClass
	case "Union":
		return graphmodel.KindUnion
	case "Enum":
		return graphmodel.KindEnum
	case "Variable", "Field", "Parameter":
		return graphmodel.KindVariable
	default:
		return graphmodel.KindUnknown
	}
}

func (d rawDoc) toSymbol() *graphmodel.Symbol {
	sym := &graphmodel.Symbol{
		ID:             d.ID,
		Name:           d.Name,
		Scope:          d.Scope,
		Signature:      d.Signature,
		ReturnType:     d.ReturnType,
		Type:           d.Type,
		Documentation:  d.Documentation,
		TemplateParams: d.TemplateParameters,
	}
	if d.SymInfo != nil {
		sym.Kind = mapKind(d.SymInfo.Kind)
		sym.Language = d.SymInfo.Lang
	}
	if d.CanonicalDeclaration != nil {
		loc := d.CanonicalDeclaration.toLocation()
		sym.Declaration = &loc
	}
	if d.Definition != nil {
		loc := d.Definition.toLocation()
		sym.Definition = &loc
	}
	return sym
}

// normalizeTabs replaces tab characters with two spaces, per the index
// format's documented tolerance for illegal indentation from some producers.
func normalizeTabs(data []byte) []byte {
	return []byte(strings.ReplaceAll(string(data), "\t", "  "))
}

// stripCustomTags walks a YAML node tree and clears any tag beginning with
// "!" that is not one of YAML's core resolved tags, so a decode into a
// concrete Go struct never trips over an indexer-specific document tag like
// "!Symbol" or "!Refs". Tag identity is informational and deliberately
// discarded rather than preserved.
func stripCustomTags(node *yaml.Node) {
	if node == nil {
		return
	}
	if strings.HasPrefix(node.Tag, "!") && !strings.HasPrefix(node.Tag, "!!") {
		node.Tag = ""
	}
	for _, child := range node.Content {
		stripCustomTags(child)
	}
}

// decodeRawDoc decodes one YAML document node into a rawDoc, tolerating
// custom tags.
func decodeRawDoc(node *yaml.Node) (rawDoc, error) {
	stripCustomTags(node)
	var doc rawDoc
	if err := node.Decode(&doc); err != nil {
		return rawDoc{}, err
	}
	return doc, nil
}
