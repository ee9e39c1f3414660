package game

import "github.com/mcoot/dealgame/internal/model"

// Notifier is told about every move appended to a game
type Notifier interface {
	PublishMove(move model.Move)
}

type nopNotifier struct{}

func (nopNotifier) PublishMove(model.Move) {}
