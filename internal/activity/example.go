package activity

var examples = map[Type]string{
	TypeWho: `{"characters":[{"name":"Sam","description":"a boy who loves boats"}],` +
		`"questions":[{"id":"q1","prompt":"Who built the boat?","options":["Sam","Grandpa","The dog"],"answer":"Sam","explanation":"Sam built it in the garage."}]}`,
	TypeWhere: `{"settings":[{"name":"The pond","description":"a quiet pond behind the house"}],` +
		`"questions":[{"id":"q1","prompt":"Where did Sam sail the boat?","options":["The pond","The sea","The bath"],"answer":"The pond"}]}`,
	TypeSequence: `{"instructions":"Put the events in order.","events":[{"id":"e1","text":"Sam found some wood."},` +
		`{"id":"e2","text":"Sam built a boat."},{"id":"e3","text":"The boat sailed across the pond."}],"correct_order":["e1","e2","e3"]}`,
	TypeMainIdea: `{"questions":[{"id":"q1","prompt":"What is this part mostly about?","options":["Sam building a boat","A rainy day","Lunch time"],"answer":"Sam building a boat"}]}`,
	TypeVocabulary: `{"words":[{"word":"sail","definition":"to move across water","example":"The boat can sail."}],` +
		`"questions":[{"id":"q1","prompt":"What does sail mean?","options":["to move across water","to sleep","to paint"],"answer":"to move across water"}]}`,
	TypePredict: `{"prompt":"What do you think Sam will build next?","hints":["Think about what Sam likes."]}`,
}

// Example returns a valid JSON payload showing the shape expected for t.
func Example(t Type) string {
	return examples[t]
}
