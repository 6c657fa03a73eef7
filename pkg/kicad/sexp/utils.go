package sexp

import (
	"fmt"
	"strconv"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

// S-expression navigation helpers

// FindNode searches for a child list with the given key (first symbol)
// Example: FindNode(sexp, "at") finds (at 100 50) in a list
func FindNode(s kicadsexp.Sexp, key string) (*kicadsexp.List, bool) {
	list, ok := s.(*kicadsexp.List)
	if !ok {
		return nil, false
	}
	node := list.Find(key)
	return node, node != nil
}

// FindAllNodes finds all child nodes with the given key
func FindAllNodes(s kicadsexp.Sexp, key string) []*kicadsexp.List {
	list, ok := s.(*kicadsexp.List)
	if !ok {
		return nil
	}
	return list.FindAll(key)
}

// GetListItems returns all items in a list (excluding the first symbol/key)
// Example: GetListItems((layers "F.Cu" "B.Cu")) returns ["F.Cu", "B.Cu"]
func GetListItems(s kicadsexp.Sexp) []kicadsexp.Sexp {
	list, ok := s.(*kicadsexp.List)
	if !ok || list.Len() <= 1 {
		return []kicadsexp.Sexp{}
	}
	return list.Items()[1:]
}

// Typed value extraction helpers

// GetString extracts the decoded atom value at the given index in a list.
// Index 0 is the key, 1 is first value, etc. Quoted strings are unescaped.
func GetString(s kicadsexp.Sexp, index int) (string, error) {
	list, ok := s.(*kicadsexp.List)
	if !ok {
		return "", fmt.Errorf("expected list, got leaf")
	}

	if index < 0 || index >= list.Len() {
		return "", fmt.Errorf("index %d out of bounds (length %d)", index, list.Len())
	}

	if sym := list.Atom(index); sym != nil {
		return sym.Value(), nil
	}

	return "", fmt.Errorf("expected symbol at index %d, got list", index)
}

// GetFloat extracts a float64 value at the given index
func GetFloat(s kicadsexp.Sexp, index int) (float64, error) {
	str, err := GetString(s, index)
	if err != nil {
		return 0, err
	}

	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse float %q: %w", str, err)
	}

	return val, nil
}

// GetInt extracts an int value at the given index
func GetInt(s kicadsexp.Sexp, index int) (int, error) {
	str, err := GetString(s, index)
	if err != nil {
		return 0, err
	}

	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("failed to parse int %q: %w", str, err)
	}

	return val, nil
}

// Domain-specific extraction helpers

// GetPosition extracts a Position from an (at X Y [angle]) node.
// Schematic coordinates are millimeters and angles are degrees.
func GetPosition(s kicadsexp.Sexp) (PositionAngle, error) {
	key, err := GetString(s, 0)
	if err != nil {
		return PositionAngle{}, fmt.Errorf("expected (at X Y [angle]) list: %w", err)
	}
	if key != "at" {
		return PositionAngle{}, fmt.Errorf("expected 'at', got %q", key)
	}

	pos, err := GetPositionXY(s)
	if err != nil {
		return PositionAngle{}, err
	}

	result := PositionAngle{Position: pos}

	// Angle is optional
	if s.LeafCount() > 3 {
		angle, err := GetFloat(s, 3)
		if err != nil {
			return PositionAngle{}, fmt.Errorf("failed to parse angle: %w", err)
		}
		result.Angle = Angle(angle)
	}

	return result, nil
}

// GetPositionXY extracts just X,Y coordinates (no angle)
// Used for (start X Y), (end X Y), (xy X Y), etc.
func GetPositionXY(s kicadsexp.Sexp) (Position, error) {
	x, err := GetFloat(s, 1)
	if err != nil {
		return Position{}, fmt.Errorf("failed to parse X: %w", err)
	}

	y, err := GetFloat(s, 2)
	if err != nil {
		return Position{}, fmt.Errorf("failed to parse Y: %w", err)
	}

	return Position{X: x, Y: y}, nil
}

// GetPoints extracts every (xy X Y) of a (pts ...) child.
func GetPoints(s kicadsexp.Sexp) []Position {
	ptsNode, ok := FindNode(s, "pts")
	if !ok {
		return nil
	}
	var points []Position
	for _, xy := range ptsNode.FindAll("xy") {
		if pos, err := GetPositionXY(xy); err == nil {
			points = append(points, pos)
		}
	}
	return points
}

// HasSymbol checks if a list contains a specific bare symbol
func HasSymbol(s kicadsexp.Sexp, symbol string) bool {
	list, ok := s.(*kicadsexp.List)
	if !ok {
		return false
	}

	for _, item := range list.Items() {
		if sym, ok := item.(*kicadsexp.Symbol); ok && !sym.Quoted() && sym.Value() == symbol {
			return true
		}
	}

	return false
}

// GetFlag reads a KiCad boolean: either a bare `hide` style symbol or a
// (name yes|no) child, which KiCad 8 writes.
func GetFlag(s kicadsexp.Sexp, name string) bool {
	if HasSymbol(s, name) {
		return true
	}
	if node, ok := FindNode(s, name); ok {
		if node.Len() == 1 {
			return true
		}
		val, _ := GetString(node, 1)
		return val == "yes"
	}
	return false
}

// GetNodeName returns the first symbol of a list (the node type/name)
func GetNodeName(s kicadsexp.Sexp) (string, error) {
	if sym, ok := s.(*kicadsexp.Symbol); ok {
		return sym.Value(), nil
	}

	if list, ok := s.(*kicadsexp.List); ok {
		if sym := list.Atom(0); sym != nil {
			return sym.Value(), nil
		}
	}

	return "", fmt.Errorf("expected symbol at head of list")
}

// GetUUID extracts a UUID from the (uuid "...") child of s
func GetUUID(s kicadsexp.Sexp) (UUID, error) {
	node, ok := FindNode(s, "uuid")
	if !ok {
		return "", fmt.Errorf("missing 'uuid' node")
	}

	id, err := GetString(node, 1)
	if err != nil {
		return "", err
	}

	return UUID(id), nil
}

// GetEffects extracts text effects from an (effects ...) node
func GetEffects(s kicadsexp.Sexp) (Effects, error) {
	effects := Effects{}

	if s.IsLeaf() {
		return effects, fmt.Errorf("expected (effects ...) list")
	}

	if fontNode, ok := FindNode(s, "font"); ok {
		effects.Font = GetFont(fontNode)
	}

	effects.Hide = GetFlag(s, "hide")

	return effects, nil
}

// GetFont extracts font properties from a (font ...) node
func GetFont(s kicadsexp.Sexp) Font {
	font := Font{}

	if sizeNode, ok := FindNode(s, "size"); ok {
		h, _ := GetFloat(sizeNode, 1)
		w, _ := GetFloat(sizeNode, 2)
		font.Size = Size{Width: w, Height: h}
	}

	font.Bold = GetFlag(s, "bold")
	font.Italic = GetFlag(s, "italic")

	return font
}

// GetProperty extracts a property from a (property ...) node
func GetProperty(s kicadsexp.Sexp) (Property, error) {
	prop := Property{}

	// Format: (property "key" "value" (at X Y angle) (effects ...))
	key, err := GetString(s, 1)
	if err != nil {
		return prop, fmt.Errorf("failed to parse property key: %w", err)
	}
	prop.Key = key

	value, err := GetString(s, 2)
	if err != nil {
		value = "" // Value can be empty
	}
	prop.Value = value

	if atNode, ok := FindNode(s, "at"); ok {
		if pos, err := GetPosition(atNode); err == nil {
			prop.Position = pos
		}
	}

	if effectsNode, ok := FindNode(s, "effects"); ok {
		if effects, err := GetEffects(effectsNode); err == nil {
			prop.Effects = effects
		}
	}

	return prop, nil
}

// FindProperty returns the (property "key" ...) child of s.
func FindProperty(s kicadsexp.Sexp, key string) (*kicadsexp.List, bool) {
	for _, pn := range FindAllNodes(s, "property") {
		if k, err := GetString(pn, 1); err == nil && k == key {
			return pn, true
		}
	}
	return nil, false
}

// GetPropertyValue returns the value of the named property of s.
func GetPropertyValue(s kicadsexp.Sexp, key string) (string, bool) {
	pn, ok := FindProperty(s, key)
	if !ok {
		return "", false
	}
	val, _ := GetString(pn, 2)
	return val, true
}
