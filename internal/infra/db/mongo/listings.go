package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlisting "campustrade/internal/domain/listing"
)

// ListingDirectory reads sellers from the marketplace items collection.
type ListingDirectory struct {
	col *mongo.Collection
}

func NewListingDirectory(db *mongo.Database) *ListingDirectory {
	return &ListingDirectory{col: db.Collection("items")}
}

func (d *ListingDirectory) Listing(ctx context.Context, id string) (domainlisting.Listing, error) {
	var doc listingDocument
	opts := options.FindOne().SetProjection(bson.M{"seller_id": 1, "title": 1})
	if err := d.col.FindOne(ctx, bson.M{"_id": strings.TrimSpace(id)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainlisting.Listing{}, domainlisting.ErrNotFound
		}
		return domainlisting.Listing{}, err
	}
	return domainlisting.Listing{ID: doc.ID, SellerID: doc.SellerID, Title: doc.Title}, nil
}

// Upsert seeds or updates a listing; used by the server's SEED_LISTINGS option.
func (d *ListingDirectory) Upsert(ctx context.Context, l domainlisting.Listing) error {
	doc := listingDocument{ID: strings.TrimSpace(l.ID), SellerID: strings.TrimSpace(l.SellerID), Title: l.Title}
	if doc.ID == "" || doc.SellerID == "" {
		return errors.New("mongo: listing id and seller are required")
	}
	_, err := d.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

type listingDocument struct {
	ID       string `bson:"_id"`
	SellerID string `bson:"seller_id"`
	Title    string `bson:"title"`
}
