package sqlinline

const QSelectProviderCredential = `--sql 1df5d671-d95d-4d25-bb10-6cffd6796960
select token
from provider_credentials
where provider = $1;
`

const QUpsertProviderCredential = `--sql 4291958e-2f42-4411-ac21-1fad78276b11
insert into provider_credentials (provider, token, props, updated_at)
values ($1, $2, $3, now())
on conflict (provider) do update
set token = excluded.token, props = excluded.props, updated_at = now();
`
