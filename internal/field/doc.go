// Package field defines the capability interfaces a form field can implement
// and the concrete field kinds used by formsync forms.
//
// Fields never reference each other. A field exposes only the capabilities
// its role needs (ValueReader, Enabler, Requirer, Reloader); the engine
// discovers them with Capabilities at registration time and routes every
// cross-field effect through the coordinator.
//
// A field's own external trigger (a user choosing a date, ticking a box) is
// the only other way its state changes: the concrete kinds update their value
// and then emit their bound event kind to an Emitter.
package field
