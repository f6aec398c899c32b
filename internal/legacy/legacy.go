// Package legacy copies the data of the previous MongoDB-backed release into
// the SQLite store. Imports are idempotent: records whose id already exists
// are skipped.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/model"
)

const (
	usersCollection       = "users"
	departmentsCollection = "departments"
	requestsCollection    = "requests"
	trashCollection       = "requests_trash"
	worklogsCollection    = "worklogs"
)

// Stats counts what one import wrote and skipped.
type Stats struct {
	Users       int
	Departments int
	Requests    int
	Trash       int
	Worklogs    int
	Skipped     int
}

type Importer struct {
	store    *db.DB
	log      *logrus.Logger
	trashTTL time.Duration
	now      func() time.Time
}

func NewImporter(store *db.DB, log *logrus.Logger, trashTTL time.Duration) *Importer {
	return &Importer{store: store, log: log, trashTTL: trashTTL, now: func() time.Time { return time.Now().UTC() }}
}

// Connect opens and pings a MongoDB client.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// Run imports departments, users, requests, trash and worklogs, in that
// order, from database.
func (im *Importer) Run(ctx context.Context, database *mongo.Database) (*Stats, error) {
	stats := &Stats{}
	now := im.now()

	err := each(ctx, database, departmentsCollection, func(d departmentDoc) error {
		dept := toDepartment(d)
		if dept.Name == "" {
			stats.Skipped++
			return nil
		}
		if err := im.store.EnsureDepartment(ctx, dept); err != nil {
			return err
		}
		stats.Departments++
		return nil
	})
	if err != nil {
		return stats, err
	}

	err = each(ctx, database, usersCollection, func(d userDoc) error {
		u := toUser(d, now)
		written, err := im.importUser(ctx, &u)
		if err != nil {
			return err
		}
		tally(&stats.Users, &stats.Skipped, written)
		return nil
	})
	if err != nil {
		return stats, err
	}

	err = each(ctx, database, requestsCollection, func(d requestDoc) error {
		r := toRequest(d, now)
		if r.ID == "" {
			stats.Skipped++
			return nil
		}
		written, err := im.store.ImportRequest(ctx, &r)
		if err != nil {
			return err
		}
		tally(&stats.Requests, &stats.Skipped, written)
		return nil
	})
	if err != nil {
		return stats, err
	}

	err = each(ctx, database, trashCollection, func(d trashDoc) error {
		e := toTrashEntry(d, now, im.trashTTL)
		if e.ID == "" {
			stats.Skipped++
			return nil
		}
		written, err := im.store.ImportTrashEntry(ctx, &e)
		if err != nil {
			return err
		}
		tally(&stats.Trash, &stats.Skipped, written)
		return nil
	})
	if err != nil {
		return stats, err
	}

	names, err := im.store.UserNames(ctx)
	if err != nil {
		return stats, err
	}
	err = each(ctx, database, worklogsCollection, func(d worklogDoc) error {
		w := toWorklog(d, names, now)
		if w.RequestID == "" || w.Hours <= 0 {
			stats.Skipped++
			return nil
		}
		written, err := im.store.ImportWorklog(ctx, &w)
		if err != nil {
			return err
		}
		tally(&stats.Worklogs, &stats.Skipped, written)
		return nil
	})
	if err != nil {
		return stats, err
	}

	im.log.WithFields(logrus.Fields{
		"users": stats.Users, "departments": stats.Departments, "requests": stats.Requests,
		"trash": stats.Trash, "worklogs": stats.Worklogs, "skipped": stats.Skipped,
	}).Info("Legacy import finished")
	return stats, nil
}

func (im *Importer) importUser(ctx context.Context, u *model.User) (bool, error) {
	if u.ID == "" || u.Username == "" {
		return false, nil
	}
	if _, err := im.store.GetUser(ctx, u.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}
	err := im.store.CreateUser(ctx, u)
	if errors.Is(err, db.ErrUsernameTaken) {
		im.log.WithField("username", u.Username).Warn("Skipping legacy user whose username is taken")
		return false, nil
	}
	return err == nil, err
}

func tally(written, skipped *int, ok bool) {
	if ok {
		*written++
	} else {
		*skipped++
	}
}

// each decodes every document of a collection into T and calls fn.
func each[T any](ctx context.Context, database *mongo.Database, collection string, fn func(T) error) error {
	cur, err := database.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("failed to decode %s document: %w", collection, err)
		}
		if err := fn(doc); err != nil {
			return fmt.Errorf("failed to import %s: %w", collection, err)
		}
	}
	return cur.Err()
}
