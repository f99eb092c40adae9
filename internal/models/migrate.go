package models

// All lists every persisted model in dependency order for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Parent{},
		&Student{},
		&Benchmark{},
		&Assessment{},
		&Plan{},
		&Story{},
		&Day{},
		&ActivityContent{},
		&ActivityProgress{},
		&ActivityResponse{},
	}
}
