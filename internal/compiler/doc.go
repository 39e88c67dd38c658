// Package compiler turns CUE form declarations into ir specs.
//
// A rules file declares forms and reactions side by side:
//
//	form: order: {
//		kinds: ["dateChanged", "pickupChanged"]
//		field: {
//			date:     {type: "date", emits: "dateChanged"}
//			timeSlot: {type: "timeslot"}
//			pickup:   {type: "checkbox", emits: "pickupChanged", initial: false}
//		}
//	}
//
//	reaction: "reload-time-slots": {
//		on:     "dateChanged"
//		reads:  ["date"]
//		writes: ["timeSlot.reload"]
//	}
//
// CompileForm and CompileReaction report structural problems as
// CompileError with CUE positions. Validate then checks the compiled specs
// against each other and returns every ValidationError found.
package compiler
