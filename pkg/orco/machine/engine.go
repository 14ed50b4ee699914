package machine

// Step runs exactly one synchronous step of m against event (eventType,
// eventData, initInput), hydrating from snapshot when present or creating a
// fresh actor from initInput otherwise. The engine performs no I/O itself;
// all side effects happen inside the Logic/Actor implementation, which per
// the Logic contract must also be synchronous.
func Step(snapshot []byte, eventType string, eventData any, initInput any, m *Machine) (StepResult, error) {
	var actor Actor
	var err error

	if snapshot == nil {
		actor, err = m.Logic.Create(initInput)
	} else {
		actor, err = m.Logic.Hydrate(snapshot)
	}
	if err != nil {
		return StepResult{}, err
	}

	return actor.Step(eventType, eventData)
}
