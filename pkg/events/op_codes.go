package events

// Every change-feed frame is a msgpack encoded row followed by one of these
// opcodes. Gaps are left for update opcodes, which the feed does not emit yet.
const (
	OpPostInsert uint8 = 16
	OpPostDelete uint8 = 18

	OpPostReactionInsert uint8 = 20
	OpPostReactionDelete uint8 = 21

	OpCommentInsert uint8 = 24
	OpCommentDelete uint8 = 26

	OpCommentReactionInsert uint8 = 28
	OpCommentReactionDelete uint8 = 29
)

type opInfo struct {
	table    Table
	op       Op
	relation Relation
}

var opcodes = map[uint8]opInfo{
	OpPostInsert:            {TablePost, OpInsert, RelationPosts},
	OpPostDelete:            {TablePost, OpDelete, RelationPosts},
	OpPostReactionInsert:    {TableReaction, OpInsert, RelationPostReactions},
	OpPostReactionDelete:    {TableReaction, OpDelete, RelationPostReactions},
	OpCommentInsert:         {TableComment, OpInsert, RelationComments},
	OpCommentDelete:         {TableComment, OpDelete, RelationComments},
	OpCommentReactionInsert: {TableCommentReaction, OpInsert, RelationCommentReactions},
	OpCommentReactionDelete: {TableCommentReaction, OpDelete, RelationCommentReactions},
}

// OpCode returns the opcode for a table/op pair.
func OpCode(table Table, op Op) (uint8, bool) {
	for code, info := range opcodes {
		if info.table == table && info.op == op {
			return code, true
		}
	}
	return 0, false
}

// RelationOf returns the relation an opcode is published on.
func RelationOf(code uint8) (Relation, bool) {
	info, ok := opcodes[code]
	return info.relation, ok
}
