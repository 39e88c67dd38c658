// Package orderform is the reference delivery order form: six fields and
// the three reactions that keep them consistent.
//
//   - dateChanged: the time-slot selector reloads its options for the date.
//   - recipientChanged: name and phone become required when another person
//     receives the order.
//   - pickupChanged: date and time slot are disabled while the customer
//     collects the order themselves.
package orderform

import (
	_ "embed"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/session"
)

// Field IDs.
const (
	Date      ir.FieldID = "date"
	TimeSlot  ir.FieldID = "timeSlot"
	Recipient ir.FieldID = "recipient"
	Name      ir.FieldID = "name"
	Phone     ir.FieldID = "phone"
	Pickup    ir.FieldID = "pickup"
)

// Event kinds.
const (
	DateChanged      ir.EventKind = "dateChanged"
	RecipientChanged ir.EventKind = "recipientChanged"
	PickupChanged    ir.EventKind = "pickupChanged"
)

// FormName is the form's declared name.
const FormName = "order"

// Kinds lists every kind the form emits.
var Kinds = []ir.EventKind{DateChanged, RecipientChanged, PickupChanged}

// Source is the CUE declaration of the same form and rules.
//
//go:embed order.cue
var Source string

// Form returns the form declaration.
func Form() ir.FormSpec {
	return ir.FormSpec{
		Name:  FormName,
		Kinds: append([]ir.EventKind(nil), Kinds...),
		Fields: []ir.FieldSpec{
			{ID: Date, Type: ir.FieldTypeDate, Emits: DateChanged, Initial: ir.Null{}, Enabled: true},
			{ID: TimeSlot, Type: ir.FieldTypeTimeSlot, Initial: ir.Null{}, Enabled: true},
			{ID: Recipient, Type: ir.FieldTypeCheckbox, Emits: RecipientChanged, Initial: ir.Bool(false), Enabled: true},
			{ID: Name, Type: ir.FieldTypeText, Initial: ir.Text(""), Enabled: true},
			{ID: Phone, Type: ir.FieldTypeText, Initial: ir.Text(""), Enabled: true},
			{ID: Pickup, Type: ir.FieldTypeCheckbox, Emits: PickupChanged, Initial: ir.Bool(false), Enabled: true},
		},
	}
}

// Reactions returns the reference rules as Go reactions, keyed by kind.
func Reactions() map[ir.EventKind][]engine.Reaction {
	return map[ir.EventKind][]engine.Reaction{
		DateChanged: {{
			ID:     "reload-time-slots",
			Reads:  []ir.FieldID{Date},
			Writes: []ir.Target{{Field: TimeSlot, Attr: ir.AttrReload}},
			Apply: func(states []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
				return []ir.FieldState{{Value: states[0].Value}}, nil
			},
		}},
		RecipientChanged: {{
			ID:     "require-recipient-contact",
			Reads:  []ir.FieldID{Recipient},
			Writes: []ir.Target{{Field: Name, Attr: ir.AttrRequired}, {Field: Phone, Attr: ir.AttrRequired}},
			Apply: func(states []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
				other := ir.Truthy(states[0].Value)
				return []ir.FieldState{{Required: other}, {Required: other}}, nil
			},
		}},
		PickupChanged: {{
			ID:     "disable-delivery-on-pickup",
			Reads:  []ir.FieldID{Pickup},
			Writes: []ir.Target{{Field: Date, Attr: ir.AttrEnabled}, {Field: TimeSlot, Attr: ir.AttrEnabled}},
			Apply: func(states []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
				delivery := !ir.Truthy(states[0].Value)
				return []ir.FieldState{{Enabled: delivery}, {Enabled: delivery}}, nil
			},
		}},
	}
}

// Rules builds the rule table, kinds in declaration order.
func Rules() (*engine.RuleTable, error) {
	rt := engine.NewRuleTable(Kinds...)
	byKind := Reactions()
	for _, k := range Kinds {
		for _, r := range byKind[k] {
			if err := rt.AddReaction(k, r); err != nil {
				return nil, err
			}
		}
	}
	return rt, nil
}

// ReactionSpecs returns the declarative equivalent of Reactions, matching
// what order.cue compiles to.
func ReactionSpecs() []ir.ReactionSpec {
	return []ir.ReactionSpec{
		{
			ID:        "reload-time-slots",
			On:        DateChanged,
			Reads:     []ir.FieldID{Date},
			Writes:    []ir.Target{{Field: TimeSlot, Attr: ir.AttrReload}},
			Transform: engine.TransformCopy,
		},
		{
			ID:        "require-recipient-contact",
			On:        RecipientChanged,
			Reads:     []ir.FieldID{Recipient},
			Writes:    []ir.Target{{Field: Name, Attr: ir.AttrRequired}, {Field: Phone, Attr: ir.AttrRequired}},
			Transform: engine.TransformCopy,
		},
		{
			ID:        "disable-delivery-on-pickup",
			On:        PickupChanged,
			Reads:     []ir.FieldID{Pickup},
			Writes:    []ir.Target{{Field: Date, Attr: ir.AttrEnabled}, {Field: TimeSlot, Attr: ir.AttrEnabled}},
			Transform: engine.TransformNot,
		},
	}
}

// New builds an order-form session using the Go rules.
func New(cfg session.Config) (*session.Session, error) {
	rules, err := Rules()
	if err != nil {
		return nil, err
	}
	return session.Build(Form(), rules, cfg)
}
