// Package coordination turns task descriptions into execution plans.
//
// A TaskClassifier maps a description to capability tags. KeywordClassifier
// scans for development, office/document and analysis keywords; RuleClassifier
// does the same with word-boundary regular expressions. Either falls back to
// general_assistance and task_coordination when nothing matches.
//
// CoordinationPlanner picks one online agent per capability whose quality
// meets both the planner threshold and the capability's own threshold,
// preferring higher quality, then lower load. Planning is all or nothing.
package coordination
