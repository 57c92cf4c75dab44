// token подписывает и проверяет компактные JWT (HS256) с ограниченным сроком
// действия. Access- и refresh-токены обслуживаются разными экземплярами Codec
// с независимыми секретами: компрометация одного секрета не позволяет
// подделать токены другого вида.
//
// Codec не имеет изменяемого состояния и безопасен для конкурентного
// использования. Ошибки Verify чисто криптографические/структурные:
// ErrExpired — срок истёк, ErrInvalid — всё остальное.
package token
