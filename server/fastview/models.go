// fastview implements a builder pattern for simple server-side views:
// given an input data model, apply a transformation to a view-model,
// and then multiplex that data to one or more views whose element updates
// are pushed to the browser over a websocket.
package fastview

import (
	"html/template"
)

// EleUpdate is an element identifier and a set of operations to apply to its attributes/content.
type EleUpdate struct {
	// The id by which to find the element
	EleId string
	// Op keys are attrib keys or 'textContent', values are the strings to which these are set.
	// Example: ('x','123') means 'set attribute 'x' to 123. 'textContent' is a reserved key:
	// ('textContent','abc') means 'set ele.textContent to abc'.
	Ops []Op
}

// Op is a key and value. For example an html attribute and its new value.
type Op struct {
	Key   string
	Value string
}

// TextContent is the reserved op key for replacing an element's text.
const TextContent = "textContent"

// SetText returns an update replacing the text of element id.
func SetText(id, text string) EleUpdate {
	return EleUpdate{EleId: id, Ops: []Op{{Key: TextContent, Value: text}}}
}

// SetAttrs returns an update from alternating attribute keys and values.
func SetAttrs(id string, keyVals ...string) EleUpdate {
	update := EleUpdate{EleId: id}
	for i := 0; i+1 < len(keyVals); i += 2 {
		update.Ops = append(update.Ops, Op{Key: keyVals[i], Value: keyVals[i+1]})
	}
	return update
}

// ViewComponent implements server side views: Parse to add their initial form
// to the page template and Updates to obtain the chan by which ele-updates are notified.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	// Parse adds the view's template definition to the parent, inheriting its
	// func-map, and returns the name to invoke it by.
	Parse(*template.Template) (string, error)
}
