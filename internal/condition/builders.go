package condition

// Eager requests a partition whenever it is missing or a parent was updated,
// as long as no parent is missing and no run is already targeting it.
func Eager() Condition {
	return And{Operands: []Condition{
		Or{Operands: []Condition{Missing{}, ParentUpdated{}}},
		Not{Operand: AnyParentMissing{}},
		Not{Operand: InProgress{}},
	}}
}

// OnCron requests the latest partition once per cron tick. The request stays
// pending until it is made, so a tick that arrives while a run is in flight
// is not lost.
func OnCron(cronExpr, timezone string) Condition {
	return And{Operands: []Condition{
		InLatestTimeWindow{Lookback: 1},
		Since{
			Trigger: CronTickPassed{Cron: cronExpr, Timezone: timezone},
			Reset:   NewlyRequested{},
		},
		Not{Operand: AnyParentMissing{}},
		Not{Operand: InProgress{}},
	}}
}

// OnMissing requests latest partitions that have never been materialized.
func OnMissing() Condition {
	return And{Operands: []Condition{
		InLatestTimeWindow{Lookback: 1},
		Missing{},
		Not{Operand: AnyParentMissing{}},
		Not{Operand: InProgress{}},
		Not{Operand: NewlyRequested{}},
	}}
}
