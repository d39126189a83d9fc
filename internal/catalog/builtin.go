package catalog

func init() {
	for _, d := range builtin() {
		Register(d)
	}
}

func ptr(f float64) *float64 { return &f }

func builtin() []Descriptor {
	textKnobs := Knobs{Placeholder: true}
	choiceDefaults := func(label string) Defaults {
		return Defaults{Label: label, Options: []string{"Option 1", "Option 2"}}
	}

	return []Descriptor{
		{Type: TypeText, Name: "Short text", Shape: ShapeString, Semantics: SemanticsString,
			Knobs: textKnobs, Defaults: Defaults{Label: "Short answer"}},
		{Type: TypeMultiline, Name: "Long text", Shape: ShapeString, Semantics: SemanticsString,
			Knobs: textKnobs, Defaults: Defaults{Label: "Long answer"}},
		{Type: TypeEmail, Name: "Email", Shape: ShapeEmail, Semantics: SemanticsString,
			Knobs: textKnobs, Defaults: Defaults{Label: "Email"}},
		{Type: TypeNumber, Name: "Number", Shape: ShapeNumber, Semantics: SemanticsNumber,
			Knobs: Knobs{Range: true, Placeholder: true}, Defaults: Defaults{Label: "Number"}},
		{Type: TypeCheckbox, Name: "Checkboxes", Shape: ShapeStringList, Semantics: SemanticsSet,
			Knobs: Knobs{Options: true}, Defaults: choiceDefaults("Checkboxes")},
		{Type: TypeRadio, Name: "Multiple choice", Shape: ShapeString, Semantics: SemanticsChoice,
			Knobs: Knobs{Options: true}, Defaults: choiceDefaults("Multiple choice")},
		{Type: TypeDropdown, Name: "Dropdown", Shape: ShapeString, Semantics: SemanticsChoice,
			Knobs: Knobs{Options: true}, Defaults: choiceDefaults("Dropdown")},
		{Type: TypeSwitch, Name: "Yes/No", Shape: ShapeBoolean, Semantics: SemanticsBoolean,
			Defaults: Defaults{Label: "Yes/No"}},
		{Type: TypeDate, Name: "Date", Shape: ShapeDate, Semantics: SemanticsDate,
			Defaults: Defaults{Label: "Date"}},
		{Type: TypeTime, Name: "Time", Shape: ShapeClock, Semantics: SemanticsDate,
			Defaults: Defaults{Label: "Time"}},
		{Type: TypeSlider, Name: "Slider", Shape: ShapeNumber, Semantics: SemanticsNumber,
			Knobs: Knobs{Range: true}, Defaults: Defaults{Label: "Slider", Min: ptr(0), Max: ptr(100), Step: ptr(1)}},
		{Type: TypeRating, Name: "Rating", Shape: ShapeNumber, Semantics: SemanticsNumber,
			Knobs: Knobs{Range: true}, Defaults: Defaults{Label: "Rating", Min: ptr(1), Max: ptr(5), Step: ptr(1)}},
		{Type: TypeScale, Name: "Linear scale", Shape: ShapeNumber, Semantics: SemanticsNumber,
			Knobs: Knobs{Range: true, ScaleLabels: true}, Defaults: Defaults{Label: "Linear scale", Min: ptr(1), Max: ptr(5), Step: ptr(1)}},
		{Type: TypeRange, Name: "Range", Shape: ShapePair, Semantics: SemanticsInterval,
			Knobs: Knobs{Range: true}, Defaults: Defaults{Label: "Range", Min: ptr(0), Max: ptr(100), Step: ptr(1)}},
		{Type: TypeImage, Name: "Image", Shape: ShapeURI, Semantics: SemanticsString,
			Defaults: Defaults{Label: "Photo"}},
		{Type: TypeSignature, Name: "Signature", Shape: ShapeURI, Semantics: SemanticsString,
			Defaults: Defaults{Label: "Signature"}},
		{Type: TypeLocation, Name: "Location", Shape: ShapeLatLng, Semantics: SemanticsNone,
			Defaults: Defaults{Label: "Location"}},
		{Type: TypeParagraph, Name: "Paragraph", Shape: ShapeNone, Semantics: SemanticsNone,
			Presentational: true, Defaults: Defaults{Label: "Paragraph"}},
		{Type: TypeHeader, Name: "Header", Shape: ShapeNone, Semantics: SemanticsNone,
			Presentational: true, Defaults: Defaults{Label: "Header"}},
		{Type: TypeDivider, Name: "Divider", Shape: ShapeNone, Semantics: SemanticsNone,
			Presentational: true, Defaults: Defaults{Label: "Divider"}},
	}
}
