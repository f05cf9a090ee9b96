// Package stages promotes registered model versions between lifecycle
// stages.
//
// Selection:
//   - Select walks the latest versions in the order given and picks the
//     first one without a stage; its destination is always Staging.
//   - Callers that need a deterministic choice order the slice first
//     (see Sort).
//
// Transition:
//   - Transitioner moves a version to a stage and records a generated
//     description. Backends that can do both in one transaction do so.
//     Otherwise the description is written only after the stage change
//     succeeded, and a failed description write surfaces as
//     *PartialTransitionError.
//   - Other versions in the destination stage are never archived.
//
// Repair:
//   - Repairer rewrites missing or stale generated descriptions of staged
//     versions, completing transitions that failed half-way. Descriptions
//     written by people are left alone.
package stages
