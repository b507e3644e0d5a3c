package chat

// OtherParticipant picks the profile of whichever participant is not identity.
func OtherParticipant(row ConversationRow, identity string) *Participant {
	if row.ParticipantOne == identity {
		return row.ProfileTwo
	}
	return row.ProfileOne
}

// Project turns a stored row into the conversation as seen by identity.
func Project(row ConversationRow, identity string, last *LastMessage) Conversation {
	return Conversation{
		ID:               row.ID,
		ParticipantOne:   row.ParticipantOne,
		ParticipantTwo:   row.ParticipantTwo,
		LastMessageAt:    row.LastMessageAt,
		CreatedAt:        row.CreatedAt,
		OtherParticipant: OtherParticipant(row, identity),
		LastMessage:      last,
	}
}
