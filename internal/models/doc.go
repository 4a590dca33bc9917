// Package models defines the core domain models for BailaGo.
//
// # Entities
//
//   - User: a registered account (local or OAuth), with its inactivity status
//   - DanceEvent: a meetup with a location, participants and DJ candidacies
//   - Group: a set of members with roles, owning group-visible events
//   - GroupInvite: a pending/resolved invitation into a group
//
// # Design Principles
//
// 1. **IDs, not pointers**: relations are stored as ids (creatorId, groupId,
// invitedUserId) and resolved through the owning registry. No back-pointers.
//
// 2. **Snapshots are point-in-time**: Participant, DjRequest and GroupMember
// embed a UserSnapshot copied when the action happened. Renaming a user
// later does not rewrite history.
//
// 3. **Projection over stripping**: User carries the credential hash and the
// one-time tokens; UserView is the only user shape handed to callers, so a
// secret cannot leak by forgetting to delete a field.
//
// 4. **Value semantics**: registries hand out copies (see Clone methods);
// mutating a returned entity never touches stored state.
package models
